package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ChannelLister reports the channels the bot currently listens to.
type ChannelLister interface {
	List() []string
}

type Config struct {
	Port         string
	HealthChecks []HealthCheck
	Metrics      http.Handler
	// Webhook receives EventSub deliveries; nil disables the route.
	Webhook    http.Handler
	Middleware []echo.MiddlewareFunc
	Channels   ChannelLister
}

type Server struct {
	echo         *echo.Echo
	port         string
	healthChecks []HealthCheck
	metrics      http.Handler
	webhook      http.Handler
	channels     ChannelLister
	startTime    time.Time
}

func NewServer(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		port:         cfg.Port,
		healthChecks: cfg.HealthChecks,
		metrics:      cfg.Metrics,
		webhook:      cfg.Webhook,
		channels:     cfg.Channels,
		startTime:    time.Now(),
	}
	srv.registerRoutes(cfg.Middleware)
	return srv
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
