package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check requests.
type HealthHandler struct {
	db       Pinger
	optional map[string]Pinger
}

// NewHealthHandler creates a new HealthHandler. The database decides the
// overall status; optional dependencies are only reported.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, optional: make(map[string]Pinger)}
}

// WithDependency reports name in the health response without failing on it.
func (h *HealthHandler) WithDependency(name string, p Pinger) *HealthHandler {
	h.optional[name] = p
	return h
}

// Check performs a health check.
// Returns 200 OK with {"status": "healthy"} when the database is reachable.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} when it is not.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.db.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}

	body := fiber.Map{"status": "healthy"}
	if len(h.optional) > 0 {
		deps := make(map[string]string, len(h.optional))
		for name, p := range h.optional {
			deps[name] = "up"
			if err := p.Ping(c.Context()); err != nil {
				log.Warn().Err(err).Str("dependency", name).Msg("health check: dependency degraded")
				deps[name] = "down"
			}
		}
		body["dependencies"] = deps
	}
	return c.JSON(body)
}
