package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/LittleAndi/AndiBanterBot/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named readiness check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type liveResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime"`
	Channels int     `json:"channels"`
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	resp := liveResponse{Status: "ok", Uptime: time.Since(s.startTime).Seconds()}
	if s.channels != nil {
		resp.Channels = len(s.channels.List())
	}
	return writeJSON(c, http.StatusOK, resp)
}

// handleReadiness runs every check concurrently and reports each outcome.
// Any failure makes the whole probe unavailable.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	results := make([]error, len(s.healthChecks))
	var wg sync.WaitGroup
	for i, hc := range s.healthChecks {
		wg.Go(func() { results[i] = hc.Check(ctx) })
	}
	wg.Wait()

	resp := readyResponse{Status: "ready"}
	code := http.StatusOK
	if len(s.healthChecks) > 0 {
		resp.Checks = make(map[string]string, len(s.healthChecks))
	}
	for i, hc := range s.healthChecks {
		if results[i] != nil {
			resp.Checks[hc.Name] = results[i].Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}
	return writeJSON(c, code, resp)
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get())
}

func writeJSON(c echo.Context, code int, body any) error {
	if err := c.JSON(code, body); err != nil {
		return fmt.Errorf("write %s response: %w", c.Path(), err)
	}
	return nil
}
