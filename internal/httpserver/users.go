package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/compliance_api/internal/service"
	authmw "github.com/Skotchmaster/compliance_api/pkg/middleware/auth"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

type UsersHTTP struct {
	Svc *service.AuthService
}

// currentUserID reads the principal stored by RequireAuth.
func currentUserID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(authmw.UserID(c))
	if err != nil {
		return uuid.Nil, authmw.Unauthorized(c, "could not validate credentials")
	}
	return id, nil
}

func (h *UsersHTTP) Me(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	user, err := h.Svc.Me(c.Request().Context(), userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UsersHTTP) UpdateMe(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_update")

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req service.UpdateProfileInput
	if err := c.Bind(&req); err != nil {
		l.Warn("update_profile_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.UpdateProfile(ctx, userID, req, clientMeta(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UsersHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_password")

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("change_password_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword, clientMeta(c)); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
