package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/handsonproduct/coder-sms-register/internal/config"
	"github.com/handsonproduct/coder-sms-register/internal/health"
	"github.com/handsonproduct/coder-sms-register/internal/twilio"
)

// Deps aggregates what the webhook routes need.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Health    *health.State
	Validator *twilio.SignatureValidator
	Logger    *slog.Logger
}

// Server wraps the Fiber application serving the inbound webhook.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and wires the webhook routes.
func New(d Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	app.Post("/inbound", Inbound(d))
	RegisterHealthRoute(app, d)

	return &Server{app: app, addr: d.Cfg.Address()}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
