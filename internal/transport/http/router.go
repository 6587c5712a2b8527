package httptransport

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/fallah-auth/internal/transport/http/middleware"
)

type accessTokenParser interface {
	ParseAccess(raw string) (domain.Identity, error)
}

// NewRouter builds the public engine. Only peers in trustedProxies may set
// the client IP through forwarding headers; with none, the per-IP limit on
// /send-code keys on the TCP peer address.
func NewRouter(logger *slog.Logger, authHandler *handler.AuthHandler, tokens accessTokenParser, sendCodeLimiter *middleware.RateLimiter, trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	// Bodies are never logged: they carry codes and tokens. Request IDs come
	// from our own middleware through the context handler.
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	}))
	r.Use(middleware.Metrics())

	// Public verification flow
	r.POST("/send-code", sendCodeLimiter.Handler(), authHandler.SendCode)
	r.POST("/verify", authHandler.Verify)
	r.POST("/refresh-token", authHandler.Refresh)

	// Protected account routes
	authed := r.Group("", middleware.Auth(tokens))
	authed.PUT("/complete-profile", authHandler.CompleteProfile)
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/me", authHandler.Me)

	return r, nil
}
