package http

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ottie/internal/config"
	"ottie/internal/metrics"
	"ottie/internal/pipeline"
)

// requestMiddleware assigns a request id, then logs and meters every
// request.
func requestMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)
		if logger != nil {
			c.Locals("logger", logger)
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		// Route pattern keeps preview ids out of metric labels.
		path := c.Route().Path

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
		return err
	}
}

// rateLimitMiddleware enforces a per-minute fixed-window limit per client
// IP using Redis. Redis failures let the request through.
func rateLimitMiddleware(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := cfg.RateLimit.DefaultPerMinute
		if rdb == nil || limit <= 0 {
			return c.Next()
		}

		window := time.Now().UTC().Format("200601021504")
		key := fmt.Sprintf("ottie:rl:%s:%s", c.IP(), window)

		ctx := c.UserContext()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			if logger != nil {
				logger.Warn("rate_limit_unavailable", "error", err)
			}
			return c.Next()
		}
		if count == 1 {
			_ = rdb.Expire(ctx, key, time.Minute)
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Success: false,
				Code:    "RATE_LIMIT_EXCEEDED",
				Error:   "Rate limit exceeded, try again later",
			})
		}
		return c.Next()
	}
}

// internalTokenMiddleware guards internal endpoints with the shared worker
// token. With no token configured every call is rejected.
func internalTokenMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		want := cfg.Worker.InternalToken
		got := c.Get(pipeline.InternalTokenHeader)
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Invalid internal token",
			})
		}
		return c.Next()
	}
}
