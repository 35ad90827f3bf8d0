package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"ottie/internal/config"
	"ottie/internal/metrics"
	"ottie/internal/pipeline"
	"ottie/internal/queue"
	"ottie/internal/services"
	"ottie/internal/store"
)

// Deps are the collaborators the server routes to. Previews is nil on
// worker-only nodes and Worker is nil on API-only nodes.
type Deps struct {
	Previews *services.Previews
	Worker   pipeline.Triggerer
	Store    store.Store
	Queue    queue.Queue
	Redis    *redis.Client
	Logger   *slog.Logger
}

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		if deps.Previews != nil {
			c.Locals("previews", deps.Previews)
		}
		return c.Next()
	})
	app.Use(requestMiddleware(deps.Logger))

	app.Get("/healthz", healthHandler(cfg, deps))

	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	if deps.Worker != nil {
		internal := app.Group("/internal", internalTokenMiddleware(cfg))
		internal.Post("/worker/trigger", triggerHandler(deps.Worker))
	}

	if deps.Previews != nil {
		v1 := app.Group("/v1", rateLimitMiddleware(cfg, deps.Redis, deps.Logger))
		registerV1Routes(v1)
	}

	return &Server{
		app:    app,
		config: cfg,
		logger: deps.Logger,
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerV1Routes(group fiber.Router) {
	group.Post("/previews", generatePreviewHandler)
	group.Get("/previews/:id/status", previewStatusHandler)
	group.Post("/previews/:id/claim", claimPreviewHandler)
	group.Post("/previews/:id/debug/:op", debugPreviewHandler)
}

// triggerHandler wakes the in-process worker and returns at once.
func triggerHandler(w pipeline.Triggerer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		w.Trigger()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
	}
}

func healthHandler(cfg *config.Config, deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		dbStatus := "disabled"
		if deps.Store != nil {
			dbStatus = "ok"
			if err := deps.Store.Ping(ctx); err != nil {
				dbStatus = "error"
			}
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = "ok"
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			}
		}

		queueStatus := "disabled"
		depth := 0
		if deps.Queue != nil {
			queueStatus = "ok"
			n, err := deps.Queue.Len(ctx)
			if err != nil {
				queueStatus = "error"
			}
			depth = n
		}

		rodStatus := "disabled"
		if cfg.Rod.Enabled {
			rodStatus = "enabled"
		}

		status := "ok"
		code := fiber.StatusOK
		if dbStatus == "error" || redisStatus == "error" || queueStatus == "error" {
			status = "error"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status":     status,
			"db":         dbStatus,
			"redis":      redisStatus,
			"queue":      queueStatus,
			"queueDepth": depth,
			"rod":        rodStatus,
		})
	}
}
