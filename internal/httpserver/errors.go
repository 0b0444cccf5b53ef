package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/compliance_api/internal/service"
	authmw "github.com/Skotchmaster/compliance_api/pkg/middleware/auth"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

// serviceError maps an AuthService error onto an HTTP error. Unauthorized
// responses carry the bearer challenge.
func serviceError(c echo.Context, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
			"detail": "validation failed",
			"fields": ve.Fields,
		}).SetInternal(err)
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, publicMessage(err)).SetInternal(err)
	case errors.Is(err, service.ErrUnauthorized):
		return authmw.Unauthorized(c, publicMessage(err))
	case errors.Is(err, service.ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, publicMessage(err)).SetInternal(err)
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

var publicMessages = []struct {
	err error
	msg string
}{
	{service.ErrEmailTaken, "email already registered"},
	{service.ErrInvalidCredentials, "incorrect email or password"},
	{service.ErrInactiveUser, "inactive user"},
	{service.ErrRefreshReused, "refresh token reuse detected, all sessions revoked"},
	{service.ErrInvalidRefreshToken, "invalid refresh token"},
	{service.ErrInvalidAccessToken, "could not validate credentials"},
	{service.ErrInvalidState, "invalid oauth state"},
	{service.ErrCodeRejected, "invalid authorization code"},
	{service.ErrEmailNotVerified, "google email is not verified"},
	{service.ErrUserGone, "could not validate credentials"},
	{service.ErrOAuthDisabled, "google sign-in is not configured"},
	{service.ErrUpstream, "identity provider unavailable"},
	{service.ErrUnauthorized, "could not validate credentials"},
	{service.ErrConflict, "conflict"},
}

// publicMessage never echoes wrapped causes (jwt parser output, provider
// responses) back to the client.
func publicMessage(err error) string {
	for _, pm := range publicMessages {
		if errors.Is(err, pm.err) {
			return pm.msg
		}
	}
	return "request failed"
}

// ErrorHandler renders every error as {"detail": ...}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var body any = echo.Map{"detail": "internal server error"}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			body = echo.Map{"detail": m}
		case echo.Map:
			body = m
		default:
			body = echo.Map{"detail": http.StatusText(code)}
		}
	}
	if code >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "status", code, "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, body)
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("write_error_response", "error", werr)
	}
}
