// Package httpapi hosts the HTTP listener shared by the WhatsApp webhook and the admin API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/logger"
)

const shutdownTimeout = 10 * time.Second

// Server wraps a gin engine with its http.Server.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds the engine with request id, access log and recovery middleware.
func NewServer(cfg *config.Config) *Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(RequestID(), AccessLog(), Recovery())

	return &Server{
		engine: engine,
		srv: &http.Server{
			Addr:         cfg.HTTP.Address(),
			Handler:      engine,
			ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
			WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSeconds) * time.Second,
		},
	}
}

// Router exposes the engine for route registration.
func (s *Server) Router() gin.IRouter {
	return s.engine
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("http server starting",
			slog.String("event", "http.start"),
			slog.String("listen", s.srv.Addr),
		)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("httpapi: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	logger.HTTP.Info("http server stopped",
		slog.String("event", "http.stop"),
		slog.String("status", logger.Status(err)),
	)
	if err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return <-errCh
}
