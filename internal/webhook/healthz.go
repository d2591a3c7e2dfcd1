package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoute adds a liveness/readiness style endpoint.
func RegisterHealthRoute(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"
		streamStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		if ok, reason := d.Health.StreamReady(); !ok {
			streamStatus = reason
		}

		status := http.StatusOK
		if dbStatus != "ok" || redisStatus != "ok" || streamStatus != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus, "stream": streamStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
