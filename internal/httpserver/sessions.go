package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/compliance_api/internal/service"
)

type SessionsHTTP struct {
	Svc *service.AuthService
}

func (h *SessionsHTTP) List(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	sessions, err := h.Svc.Sessions(c.Request().Context(), userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

// RevokeAll logs the user out everywhere, including this client.
func (h *SessionsHTTP) RevokeAll(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	n, err := h.Svc.LogOutAll(c.Request().Context(), userID, clientMeta(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}
