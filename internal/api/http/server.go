package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dopl-dev/stream-forwarder/internal/api/http/middlewares"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Controller registers its routes on the router.
type Controller interface {
	RegisterRoutes(r *gin.Engine)
}

// Server is the forwarder's HTTP API: a config and a list of controllers.
type Server struct {
	cfg         ServerConfig
	controllers []Controller
	log         *slog.Logger
	srv         *http.Server
}

func NewServer(cfg ServerConfig, log *slog.Logger) *Server {
	return &Server{cfg: cfg, log: log}
}

// AddController adds one or more controllers. Call before Start.
func (s *Server) AddController(c ...Controller) {
	s.controllers = append(s.controllers, c...)
}

// Router builds the gin engine with middleware and every controller's routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.PrometheusMetrics)
	r.Use(middlewares.RequestLogger(s.log))
	for _, c := range s.controllers {
		c.RegisterRoutes(r)
	}
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully, letting
// in-flight requests finish within ShutdownTimeout. A listener failure is
// returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
