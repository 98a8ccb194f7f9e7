package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/authcore/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/authcore/internal/middleware/logging"
	"github.com/Skotchmaster/authcore/internal/models"
)

const APIPrefix = "/api/v1/auth"

type Deps struct {
	AuthHandler *AuthHTTP
	Gate        *auth.Gate
	// Ready reports whether dependencies (the database) are reachable.
	Ready func(ctx context.Context) error
	// IPExtractor decides the client address; nil uses the peer address.
	IPExtractor echo.IPExtractor
}

// IPExtractor trusts X-Forwarded-For only when it was added by one of the
// trustedProxies CIDR ranges. Without ranges the peer address is used.
func IPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Status: "error", Code: CodeUnavailable, Message: "database unreachable"})
			}
		}
		return c.NoContent(http.StatusOK)
	})

	g := e.Group(APIPrefix)
	g.POST("/register", d.AuthHandler.Register)
	g.POST("/login", d.AuthHandler.Login)
	g.POST("/refresh", d.AuthHandler.Refresh)

	user := d.Gate.Require(models.RoleUser)
	g.POST("/logout", d.AuthHandler.Logout, user)
	g.GET("/me", d.AuthHandler.Me, user)

	admin := d.Gate.Require(models.RoleAdmin)
	g.GET("/users/:id", d.AuthHandler.GetUser, admin)
	g.PATCH("/users/:id/role", d.AuthHandler.ChangeRole, admin)
}

// New builds the echo instance with the error renderer and middleware chain
// used in production.
func New(log *slog.Logger, d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(log)
	e.IPExtractor = d.IPExtractor
	if e.IPExtractor == nil {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), loggingmw.RequestLogger(log))

	Register(e, d)
	return e
}
