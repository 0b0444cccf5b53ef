package cookies

import (
	"net/http"
	"time"
)

const (
	AccessName  = "accessToken"
	RefreshName = "refreshToken"
)

// Jar builds the auth cookies. Secure is switched off only for local
// plain-http development.
type Jar struct {
	Secure bool
	Path   string
}

func (j Jar) path() string {
	if j.Path == "" {
		return "/"
	}
	return j.Path
}

func (j Jar) Create(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     j.path(),
		Expires:  exp,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (j Jar) Delete(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     j.path(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return Jar{Secure: true, Path: path}.Create(name, value, exp)
}

func DeleteCookie(name, path string) *http.Cookie {
	return Jar{Secure: true, Path: path}.Delete(name)
}
