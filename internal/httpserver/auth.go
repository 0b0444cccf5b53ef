package httpserver

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/compliance_api/internal/models"
	"github.com/Skotchmaster/compliance_api/internal/service"
	"github.com/Skotchmaster/compliance_api/pkg/cookies"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

type AuthHTTP struct {
	Svc     *service.AuthService
	Cookies cookies.Jar
	// FrontendURL receives the browser after the Google redirect flow.
	FrontendURL string
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *models.User `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func clientMeta(c echo.Context) service.ClientMeta {
	return service.ClientMeta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

// respondTokens sets the auth cookies and writes the token body.
func (h *AuthHTTP) respondTokens(c echo.Context, code int, res *service.AuthResult) error {
	h.setCookies(c, res)
	expiresIn := int64(time.Until(res.AccessExp).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return c.JSON(code, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		User:         res.User,
	})
}

func (h *AuthHTTP) setCookies(c echo.Context, res *service.AuthResult) {
	c.SetCookie(h.Cookies.Create(cookies.AccessName, res.AccessToken, res.AccessExp))
	c.SetCookie(h.Cookies.Create(cookies.RefreshName, res.RefreshToken, res.RefreshExp))
}

func (h *AuthHTTP) clearCookies(c echo.Context) {
	c.SetCookie(h.Cookies.Delete(cookies.RefreshName))
	c.SetCookie(h.Cookies.Delete(cookies.AccessName))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Register(ctx, req, clientMeta(c))
	if err != nil {
		return serviceError(c, err)
	}
	return h.respondTokens(c, http.StatusCreated, res)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password, clientMeta(c))
	if err != nil {
		return serviceError(c, err)
	}
	return h.respondTokens(c, http.StatusOK, res)
}

// GoogleURL hands the SPA the consent screen URL.
func (h *AuthHTTP) GoogleURL(c echo.Context) error {
	authURL, state, err := h.Svc.GoogleAuthURL(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"auth_url": authURL, "state": state})
}

// GoogleExchange completes sign-in for a SPA that captured the code itself.
func (h *AuthHTTP) GoogleExchange(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_google")

	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("google_login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.GoogleCallback(ctx, req.Code, req.State, clientMeta(c))
	if err != nil {
		return serviceError(c, err)
	}
	return h.respondTokens(c, http.StatusOK, res)
}

// GoogleRedirect is the browser leg of the flow. Google sends the user here
// and we bounce them to the frontend with the tokens or an error message.
func (h *AuthHTTP) GoogleRedirect(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_google_callback")

	if msg := c.QueryParam("error"); msg != "" {
		l.Warn("google_login_failed", "status", 302, "reason", "consent denied", "error", msg)
		return c.Redirect(http.StatusFound, h.frontend("/auth/error", url.Values{"message": {msg}}))
	}

	res, err := h.Svc.GoogleCallback(ctx, c.QueryParam("code"), c.QueryParam("state"), clientMeta(c))
	if err != nil {
		return c.Redirect(http.StatusFound, h.frontend("/auth/error", url.Values{"message": {publicMessage(err)}}))
	}

	h.setCookies(c, res)
	return c.Redirect(http.StatusFound, h.frontend("/auth/callback", url.Values{
		"access_token":  {res.AccessToken},
		"refresh_token": {res.RefreshToken},
	}))
}

func (h *AuthHTTP) frontend(path string, q url.Values) string {
	return h.FrontendURL + path + "?" + q.Encode()
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	token, err := refreshTokenFrom(c)
	if err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Refresh(ctx, token, clientMeta(c))
	if err != nil {
		h.clearCookies(c)
		return serviceError(c, err)
	}
	return h.respondTokens(c, http.StatusOK, res)
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	token, err := refreshTokenFrom(c)
	if err != nil {
		l.Warn("logout_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	h.clearCookies(c)
	if err := h.Svc.LogOut(ctx, token, clientMeta(c)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// refreshTokenFrom prefers the JSON body and falls back to the cookie.
func refreshTokenFrom(c echo.Context) (string, error) {
	var req refreshRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return "", err
		}
	}
	if req.RefreshToken != "" {
		return req.RefreshToken, nil
	}
	if ck, err := c.Cookie(cookies.RefreshName); err == nil {
		return ck.Value, nil
	}
	return "", nil
}

// RefreshFromCookie rotates the cookie pair for the auto refresh middleware.
func (h *AuthHTTP) RefreshFromCookie(c echo.Context, refreshToken string) (string, error) {
	res, err := h.Svc.Refresh(c.Request().Context(), refreshToken, clientMeta(c))
	if err != nil {
		h.clearCookies(c)
		return "", err
	}
	h.setCookies(c, res)
	return res.AccessToken, nil
}
