// Package auth guards echo routes with bearer access tokens and a minimum
// role.
package auth

import (
	"errors"
	"fmt"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authcore/internal/audit"
	"github.com/Skotchmaster/authcore/internal/logging"
	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/tokens"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrForbidden              = errors.New("insufficient role")
)

const (
	ContextKeyClaims = "auth_claims"
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"

	contextKeyError = "auth_error"
)

type Gate struct {
	Secret []byte
	Codec  tokens.Codec
	Audit  audit.Recorder
}

// Check decides whether rawToken grants at least required. A failed codec
// check satisfies both errors.Is(err, ErrAuthenticationFailed) and
// errors.Is(err, <codec error>).
func (g *Gate) Check(rawToken string, required models.Role) (*tokens.AccessClaims, error) {
	if rawToken == "" {
		return nil, ErrAuthenticationRequired
	}
	claims, err := g.Codec.ParseAccess(rawToken, g.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if !claims.Role.Includes(required) {
		return nil, fmt.Errorf("%w: %s required", ErrForbidden, required)
	}
	return claims, nil
}

// Require returns middleware that admits requests carrying
// "Authorization: Bearer <access token>" with a role of at least required.
func (g *Gate) Require(required models.Role) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  ContextKeyClaims,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, raw string) (interface{}, error) {
			claims, err := g.Check(raw, required)
			if err != nil {
				g.reportFailure(c, err)
				c.Set(contextKeyError, err)
				return nil, err
			}
			return claims, nil
		},
		SuccessHandler: func(c echo.Context) {
			if claims, ok := c.Get(ContextKeyClaims).(*tokens.AccessClaims); ok {
				c.Set(ContextKeyUserID, claims.Subject)
				c.Set(ContextKeyRole, claims.Role)
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			if checkErr, ok := c.Get(contextKeyError).(error); ok {
				return checkErr
			}
			// header missing or not a bearer credential
			return fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
		},
	})
}

func (g *Gate) reportFailure(c echo.Context, err error) {
	if !errors.Is(err, tokens.ErrTokenSignatureInvalid) {
		return
	}
	ctx := c.Request().Context()
	logging.FromContext(ctx).Warn("token_rejected", "svc", "auth.gate", "status", 401, "reason", "bad signature", "remote_ip", c.RealIP())
	if g.Audit != nil {
		g.Audit.Record(ctx, audit.Event{Type: audit.EventTokenSignatureInvalid, IP: c.RealIP(), Reason: "access token"})
	}
}

func UserID(c echo.Context) string {
	id, _ := c.Get(ContextKeyUserID).(string)
	return id
}

func Role(c echo.Context) models.Role {
	role, _ := c.Get(ContextKeyRole).(models.Role)
	return role
}
