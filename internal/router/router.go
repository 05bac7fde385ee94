package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/edumark-api/internal/config"
	"github.com/noah-isme/edumark-api/internal/handler"
	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	UserHandler          *handler.UserHandler
	ClassroomHandler     *handler.ClassroomHandler
	AssignmentHandler    *handler.AssignmentHandler
	SubmissionHandler    *handler.SubmissionHandler
	GradingStreamHandler *handler.GradingStreamHandler
	HealthProbes         []handler.HealthProbe
	JWTMiddleware        fiber.Handler
	LoginLimiter         fiber.Handler
	ImportLimiter        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.UserHandler != nil {
		limiter := deps.LoginLimiter
		if limiter == nil {
			limiter = middleware.RateLimit("login", 10, 15*time.Minute)
		}
		deps.UserHandler.Register(api.Group("/users"), jwtMiddleware, limiter)
	}

	if deps.ClassroomHandler != nil {
		deps.ClassroomHandler.Register(api.Group("/classrooms", jwtMiddleware))
	}

	if deps.AssignmentHandler != nil {
		limiter := deps.ImportLimiter
		if limiter == nil {
			limiter = middleware.RateLimit("import-zip", 5, time.Minute)
		}
		deps.AssignmentHandler.Register(api.Group("/assignments", jwtMiddleware), limiter)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api.Group("/submissions", jwtMiddleware))
	}

	if deps.GradingStreamHandler != nil {
		deps.GradingStreamHandler.Register(api.Group("/grading", jwtMiddleware))
	}
}
