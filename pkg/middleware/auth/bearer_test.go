package authmw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/compliance_api/pkg/cookies"
)

var errBadToken = errors.New("bad token")

func fakeAuthenticate(ctx context.Context, token string) (string, string, error) {
	switch token {
	case "good", "fresh":
		return "user-1", "user@example.com", nil
	case "expired":
		return "", "", fmt.Errorf("invalid access token: %w", jwt.ErrTokenExpired)
	default:
		return "", "", errBadToken
	}
}

func run(t *testing.T, b *Bearer, req *http.Request) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := b.RequireAuth(func(c echo.Context) error {
		p, ok := FromContext(c.Request().Context())
		require.True(t, ok)
		return c.String(http.StatusOK, p.UserID)
	})(c)
	return rec, c, err
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
	}{
		{name: "valid bearer", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "invalid bearer", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
		{name: "expired bearer", header: "Bearer expired", wantStatus: http.StatusUnauthorized},
		{name: "cookie fallback", cookie: "good", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: cookies.AccessName, Value: tt.cookie})
			}

			rec, c, err := run(t, &Bearer{Authenticate: fakeAuthenticate}, req)
			if tt.wantStatus == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, "user-1", rec.Body.String())
				assert.Equal(t, "user-1", UserID(c))
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.wantStatus, he.Code)
			assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
		})
	}
}

func TestRequireAuth_AutoRefreshFromCookies(t *testing.T) {
	t.Parallel()

	var got string
	b := &Bearer{
		Authenticate: fakeAuthenticate,
		Refresh: func(c echo.Context, refreshToken string) (string, error) {
			got = refreshToken
			return "fresh", nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: cookies.AccessName, Value: "expired"})
	req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "r1"})

	rec, _, err := run(t, b, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", got)
}

func TestRequireAuth_NoAutoRefreshForBearerHeader(t *testing.T) {
	t.Parallel()

	called := false
	b := &Bearer{
		Authenticate: fakeAuthenticate,
		Refresh: func(c echo.Context, refreshToken string) (string, error) {
			called = true
			return "fresh", nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer expired")
	req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "r1"})

	_, _, err := run(t, b, req)
	require.Error(t, err)
	assert.False(t, called)
}

func TestRequireAuth_AutoRefreshFailure(t *testing.T) {
	t.Parallel()

	b := &Bearer{
		Authenticate: fakeAuthenticate,
		Refresh: func(c echo.Context, refreshToken string) (string, error) {
			return "", errors.New("revoked")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: cookies.AccessName, Value: "expired"})
	req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "r1"})

	_, _, err := run(t, b, req)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}
