package tokens

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/authcore/internal/models"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is implemented by the claim sets this package signs. The unexported
// methods let Sign and Verify manage iat, exp and typ uniformly.
type Claims interface {
	jwt.Claims
	registered() *jwt.RegisteredClaims
	tokenType() *string
	expectedType() string
}

type AccessClaims struct {
	Role models.Role `json:"role"`
	Type string      `json:"typ"`
	jwt.RegisteredClaims
}

func NewAccessClaims(subject string, role models.Role) *AccessClaims {
	return &AccessClaims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
}

func (c *AccessClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }
func (c *AccessClaims) tokenType() *string                { return &c.Type }
func (c *AccessClaims) expectedType() string              { return TypeAccess }

type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func NewRefreshClaims(subject, jti string) *RefreshClaims {
	return &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ID: jti},
	}
}

func (c *RefreshClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }
func (c *RefreshClaims) tokenType() *string                { return &c.Type }
func (c *RefreshClaims) expectedType() string              { return TypeRefresh }
