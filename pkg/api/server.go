// Package api exposes the file lifecycle engine's pipelines over HTTP: the
// Upload Pipeline and URL Download as write endpoints, file/thumbnail
// reads, soft-delete, an on-demand reconciler trigger, the Problem
// Detector's report, liveness/readiness probes, and a Prometheus
// exposition endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bozonx/mediastore/internal/config"
	"github.com/bozonx/mediastore/internal/logger"
)

// Server is the HTTP server hosting the file lifecycle engine's API.
type Server struct {
	server       *http.Server
	config       config.APIConfig
	shutdownOnce sync.Once
}

// NewServer builds a Server from a Handlers bundle and the API config.
func NewServer(cfg config.APIConfig, h *Handlers) *Server {
	router := NewRouter(h, cfg)

	return &Server{
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		config: cfg,
	}
}

// Start listens and blocks until ctx is canceled, then gracefully shuts down.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", logger.Key(s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}
