package authmw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/compliance_api/pkg/cookies"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
)

// AuthenticateFunc verifies an access token and returns who it belongs to.
type AuthenticateFunc func(ctx context.Context, token string) (userID, email string, err error)

// RefreshFunc rotates the refresh token found in the request cookies, sets
// the new cookies on c and returns the new access token.
type RefreshFunc func(c echo.Context, refreshToken string) (accessToken string, err error)

type Bearer struct {
	Authenticate AuthenticateFunc
	// Refresh is optional. When set, a browser request carrying an expired
	// access cookie and a refresh cookie is transparently rotated.
	Refresh RefreshFunc
}

type principalKey struct{}

type Principal struct {
	UserID string
	Email  string
}

func (b *Bearer) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("mw", "require_auth")

		token, fromCookie := extractToken(c)
		if token == "" {
			return Unauthorized(c, "not authenticated")
		}

		userID, email, err := b.Authenticate(ctx, token)
		if err == nil {
			setPrincipal(c, userID, email)
			return next(c)
		}

		if !fromCookie || b.Refresh == nil || !errors.Is(err, jwt.ErrTokenExpired) {
			l.Warn("auth_rejected", "status", http.StatusUnauthorized, "error", err)
			return Unauthorized(c, "could not validate credentials")
		}

		refreshCookie, rErr := c.Cookie(cookies.RefreshName)
		if rErr != nil || refreshCookie.Value == "" {
			return Unauthorized(c, "access token expired")
		}

		newAccess, refErr := b.Refresh(c, refreshCookie.Value)
		if refErr != nil {
			l.Warn("auto_refresh_failed", "status", http.StatusUnauthorized, "error", refErr)
			return Unauthorized(c, "session expired")
		}

		userID, email, err = b.Authenticate(ctx, newAccess)
		if err != nil {
			return Unauthorized(c, "could not validate credentials")
		}
		l.Info("auto_refresh_ok", "user_id", userID)
		setPrincipal(c, userID, email)
		return next(c)
	}
}

// Unauthorized sets the bearer challenge header and returns a 401.
func Unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return echo.NewHTTPError(http.StatusUnauthorized, msg)
}

func extractToken(c echo.Context) (token string, fromCookie bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		return strings.TrimSpace(value), false
	}
	if ck, err := c.Cookie(cookies.AccessName); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	return "", false
}

func setPrincipal(c echo.Context, userID, email string) {
	c.Set(CtxUserID, userID)
	c.Set(CtxEmail, email)
	req := c.Request()
	c.SetRequest(req.WithContext(context.WithValue(req.Context(), principalKey{}, Principal{UserID: userID, Email: email})))
}

func UserID(c echo.Context) string {
	id, _ := c.Get(CtxUserID).(string)
	return id
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
