package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	authmw "github.com/Skotchmaster/compliance_api/pkg/middleware/auth"
)

type Deps struct {
	Auth     *AuthHTTP
	Users    *UsersHTTP
	Sessions *SessionsHTTP
	// Audit is nil when Elasticsearch is not configured.
	Audit *AuditHTTP

	Bearer *authmw.Bearer
	// CSRF guards cookie-authenticated /api calls. Optional.
	CSRF echo.MiddlewareFunc
	// Ready reports whether the service can take traffic.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	live := func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"status": "ok"}) }
	e.GET("/health", live)
	e.GET("/health/live", live)
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready").SetInternal(err)
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	auth := e.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.GET("/google", d.Auth.GoogleURL)
	auth.POST("/google", d.Auth.GoogleExchange)
	auth.GET("/google/callback", d.Auth.GoogleRedirect)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.LogOut)

	api := e.Group("/api")
	if d.CSRF != nil {
		api.Use(d.CSRF)
	}
	api.Use(d.Bearer.RequireAuth)

	api.GET("/users/me", d.Users.Me)
	api.PATCH("/users/me", d.Users.UpdateMe)
	api.POST("/users/me/password", d.Users.ChangePassword)

	api.GET("/sessions", d.Sessions.List)
	api.POST("/sessions/revoke-all", d.Sessions.RevokeAll)

	if d.Audit != nil {
		api.GET("/audit/events", d.Audit.Events)
	}
}

// NewBearer adapts AuthService to the auth middleware.
func NewBearer(h *AuthHTTP) *authmw.Bearer {
	return &authmw.Bearer{
		Authenticate: func(ctx context.Context, token string) (string, string, error) {
			id, err := h.Svc.Authenticate(ctx, token)
			if err != nil {
				return "", "", err
			}
			return id.UserID, id.Email, nil
		},
		Refresh: h.RefreshFromCookie,
	}
}

// CORSConfig lets the frontend send credentials and the CSRF header and
// read the CSRF token back.
func CORSConfig(origins []string) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXCSRFToken,
		},
		ExposeHeaders: []string{echo.HeaderXCSRFToken},
	}
}
