package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bozonx/mediastore/internal/config"
	"github.com/bozonx/mediastore/internal/logger"
)

// NewRouter wires the file lifecycle engine's HTTP surface.
//
// Routes:
//   - GET  /health        - Liveness probe
//   - GET  /health/ready  - Readiness probe (metadata store reachable)
//   - GET  /metrics       - Prometheus exposition
//   - POST /api/v1/files       - Upload Pipeline ingest (raw body)
//   - POST /api/v1/files/fetch - URL Download into the Upload Pipeline
//   - GET  /api/v1/files/{id}             - File metadata
//   - GET  /api/v1/files/{id}/thumbnails  - Thumbnail variants
//   - DELETE /api/v1/files/{id}           - Soft-delete
//   - GET  /api/v1/status      - Per-status record counts
//   - GET  /api/v1/problems    - Problem Detector report
//   - POST /api/v1/reconcile   - Run one reconciler cycle on demand
func NewRouter(h *Handlers, cfg config.APIConfig) http.Handler {
	r := chi.NewRouter()

	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Liveness)
		r.Get("/ready", h.Readiness)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.Post("/", h.UploadFile)
			r.Post("/fetch", h.FetchFromURL)
			r.Get("/{id}", h.GetFile)
			r.Delete("/{id}", h.DeleteFile)
			r.Get("/{id}/thumbnails", h.ListThumbnails)
		})

		r.Get("/status", h.StatusSummary)
		r.Get("/problems", h.GetProblems)
		r.Post("/reconcile", h.TriggerReconcile)
	})

	return r
}

func isHealthPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
