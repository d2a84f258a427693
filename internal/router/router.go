package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ordelia/chat-api/internal/config"
	"github.com/ordelia/chat-api/internal/handler"
	"github.com/ordelia/chat-api/internal/middleware"
	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler          *handler.ChatHandler
	AdminChatHandler     *handler.AdminChatHandler
	NotificationHandler  *handler.NotificationHandler
	RoomProvisionHandler *handler.RoomProvisionHandler
	JWTMiddleware        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ChatHandler != nil {
		chat := api.Group("/chat", jwtMiddleware)
		deps.ChatHandler.Register(chat)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.AdminChatHandler != nil {
		admin := api.Group("/admin/chat", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
		deps.AdminChatHandler.Register(admin)
	}

	// Internal surface for service-to-service callbacks; deployment keeps it
	// off the public ingress.
	if deps.RoomProvisionHandler != nil {
		internal := app.Group("/internal", middleware.RateLimit("internal", 60, time.Minute))
		deps.RoomProvisionHandler.Register(internal)
	}
}
