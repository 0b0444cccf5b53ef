package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Use(Middleware(Config{Secure: false}))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/thing", ok)
	e.POST("/thing", ok)
	return e
}

func TestMiddleware_SafeMethodIssuesToken(t *testing.T) {
	e := newEcho()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/thing", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	token := rec.Header().Get("X-CSRF-Token")
	require.NotEmpty(t, token)

	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "XSRF-TOKEN" {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.False(t, cookie.HttpOnly)
}

func TestMiddleware_UnsafeMethod(t *testing.T) {
	e := newEcho()

	tests := []struct {
		name   string
		cookie string
		header string
		bearer bool
		want   int
	}{
		{name: "missing header", cookie: "abc", want: http.StatusForbidden},
		{name: "mismatch", cookie: "abc", header: "xyz", want: http.StatusForbidden},
		{name: "no cookie", header: "abc", want: http.StatusForbidden},
		{name: "match", cookie: "abc", header: "abc", want: http.StatusNoContent},
		{name: "bearer bypass", bearer: true, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/thing", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			if tt.bearer {
				req.Header.Set(echo.HeaderAuthorization, "Bearer token")
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_OnlyChecksCookieSessions(t *testing.T) {
	e := echo.New()
	e.Use(Middleware(Config{Secure: false, SessionCookies: []string{"accessToken"}}))
	e.POST("/thing", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/thing", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/thing", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "session"})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
