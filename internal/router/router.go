package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mentorium/supervision-api/internal/config"
	"github.com/mentorium/supervision-api/internal/handler"
	"github.com/mentorium/supervision-api/internal/middleware"
	"github.com/mentorium/supervision-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RelationshipHandler *handler.RelationshipHandler
	UnbindHandler       *handler.UnbindHandler
	DocumentHandler     *handler.DocumentHandler
	ComplianceHandler   *handler.ComplianceHandler
	EventFeedHandler    *handler.EventFeedHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	partyRoles := middleware.RequireRole(middleware.RoleSupervisor, middleware.RoleStudent)
	mutationLimit := middleware.RateLimit("lifecycle", 30, time.Minute)

	if deps.RelationshipHandler != nil {
		relationships := api.Group("/relationships", jwtMiddleware, partyRoles)
		relationships.Use(func(c *fiber.Ctx) error {
			if c.Method() == fiber.MethodGet {
				return c.Next()
			}
			return mutationLimit(c)
		})

		deps.RelationshipHandler.Register(relationships)

		if deps.UnbindHandler != nil {
			deps.UnbindHandler.RegisterRelationshipRoutes(relationships)
		}
		if deps.DocumentHandler != nil {
			deps.DocumentHandler.Register(relationships)
		}
	}

	if deps.UnbindHandler != nil {
		requests := api.Group("/unbind-requests", jwtMiddleware, partyRoles, mutationLimit)
		deps.UnbindHandler.RegisterRequestRoutes(requests)
	}

	if deps.EventFeedHandler != nil {
		events := api.Group("/events", jwtMiddleware, partyRoles)
		deps.EventFeedHandler.Register(events)
	}

	if deps.ComplianceHandler != nil {
		internal := api.Group("/internal", middleware.RequireInternalToken(cfg.InternalToken))
		deps.ComplianceHandler.Register(internal)
	}
}
