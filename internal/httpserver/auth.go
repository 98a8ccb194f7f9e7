package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authcore/internal/logging"
	"github.com/Skotchmaster/authcore/internal/middleware/auth"
	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/service"
)

const MessageRegisteredWithoutTokens = "account created but tokens could not be issued, log in to continue"

type AuthHTTP struct {
	Auth   *service.AuthService
	Tokens *service.TokenService
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Auth.Register(ctx, service.NewUser{Email: req.Email, Password: req.Password}, c.RealIP())
	if err != nil {
		return err
	}

	payload, err := h.issue(c, user)
	if err != nil {
		// the account exists; a retry would conflict, so point the client at login
		l.Error("register_token_issue_failed", "status", 503, "user_id", user.ID, "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, MessageRegisteredWithoutTokens)
	}
	l.Info("register_successful", "user_id", user.ID)
	return c.JSON(http.StatusCreated, payload)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Auth.Login(ctx, service.Credentials{Email: req.Email, Password: req.Password, IP: c.RealIP()})
	if err != nil {
		return err
	}

	payload, err := h.issue(c, user)
	if err != nil {
		return err
	}
	l.Info("login_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, payload)
}

func (h *AuthHTTP) issue(c echo.Context, user *models.User) (*AuthenticationPayload, error) {
	access, err := h.Tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := h.Tokens.GenerateRefreshToken(c.Request().Context(), user, 0)
	if err != nil {
		return nil, err
	}
	return &AuthenticationPayload{
		User:    user,
		Payload: TokenDescriptor{Type: TokenTypeBearer, Token: access, RefreshToken: refresh},
	}, nil
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		l.Warn("refresh_error", "status", 400, "reason", "missing refresh token")
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	res, err := h.Tokens.CreateAccessTokenFromRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AuthenticationPayload{
		User:    res.User,
		Payload: TokenDescriptor{Type: TokenTypeBearer, Token: res.AccessToken, RefreshToken: res.RefreshToken},
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout", "user_id", auth.UserID(c))

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	if err := h.Tokens.RevokeRefreshToken(ctx, auth.UserID(c), req.RefreshToken); err != nil {
		return err
	}

	l.Info("successful_logout")
	return c.JSON(http.StatusOK, success(nil))
}

func (h *AuthHTTP) Me(c echo.Context) error {
	user, err := h.Auth.GetUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success(user))
}

func (h *AuthHTTP) GetUser(c echo.Context) error {
	user, err := h.Auth.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, success(user))
}

func (h *AuthHTTP) ChangeRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_role", "admin_id", auth.UserID(c))

	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.Auth.ChangeRole(ctx, c.Param("id"), role)
	if err != nil {
		return notFound(err)
	}
	l.Info("role_changed", "user_id", user.ID, "role", user.Role)
	return c.JSON(http.StatusOK, success(user))
}

// notFound reports a missing path resource as 404 rather than the 401 used
// when the subject of a token has disappeared.
func notFound(err error) error {
	if errors.Is(err, service.ErrUserNotFound) {
		return withStatus(http.StatusNotFound, err)
	}
	return err
}
