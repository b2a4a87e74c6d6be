package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mindhaven/immerse/internal/version"
)

type readinessCheck struct {
	name string
	fn   func(context.Context) error
}

// AddReadinessCheck registers a dependency probe run by /health/ready.
// Register checks before Start.
func (s *Server) AddReadinessCheck(name string, fn func(context.Context) error) {
	s.readiness = append(s.readiness, readinessCheck{name: name, fn: fn})
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status":  "ok",
		"uptime":  uptime,
		"version": version.Get(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	for _, check := range s.readiness {
		if err := check.fn(ctx); err != nil {
			return c.JSON(503, map[string]any{
				"status":       "unhealthy",
				"failed_check": check.name,
				"error":        err.Error(),
			})
		}
	}
	return c.JSON(200, map[string]string{"status": "ready"})
}
