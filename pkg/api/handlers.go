package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/metadata"
	"github.com/bozonx/mediastore/pkg/metrics"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/optimize"
	"github.com/bozonx/mediastore/pkg/problems"
	"github.com/bozonx/mediastore/pkg/reconciler"
	"github.com/bozonx/mediastore/pkg/softdelete"
	"github.com/bozonx/mediastore/pkg/storeerrors"
	"github.com/bozonx/mediastore/pkg/upload"
	"github.com/bozonx/mediastore/pkg/urlfetch"
)

// Handlers bundles every pipeline the API surfaces, so NewRouter takes a
// single struct instead of a long parameter list.
type Handlers struct {
	Upload     *upload.Pipeline
	Optimize   *optimize.Engine
	SoftDelete *softdelete.Manager
	Reconciler *reconciler.Reconciler
	Detector   *problems.Detector
	Fetcher    *urlfetch.Fetcher
	Metadata   metadata.Store
	Metrics    *metrics.Metrics
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if se, ok := err.(*storeerrors.StoreError); ok {
		status := statusForCode(se.Code)
		writeJSON(w, status, map[string]string{"error": se.Error(), "code": se.Code.String()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func statusForCode(code storeerrors.ErrorCode) int {
	switch code {
	case storeerrors.ErrNotFound:
		return http.StatusNotFound
	case storeerrors.ErrAlreadyExists, storeerrors.ErrConflict:
		return http.StatusConflict
	case storeerrors.ErrInvalidArgument, storeerrors.ErrUnsupportedMimeType, storeerrors.ErrChecksumMismatch:
		return http.StatusBadRequest
	case storeerrors.ErrFileTooLarge, storeerrors.ErrDownloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case storeerrors.ErrDeleted, storeerrors.ErrBlobMissing:
		return http.StatusGone
	case storeerrors.ErrSSRFBlocked:
		return http.StatusForbidden
	case storeerrors.ErrDownloadTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// UploadFile handles POST /api/v1/files — a raw-body upload where the mime
// type and filename come from headers, following the teacher's preference
// for explicit request headers over multipart parsing for binary payloads.
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Content-Type header is required"})
		return
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	filename := r.Header.Get("X-Filename")

	result, err := h.Upload.Ingest(r.Context(), r.Body, filename, mimeType, r.ContentLength)
	if err != nil {
		logger.ErrorCtx(r.Context(), "upload failed", logger.Err(err))
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	writeJSON(w, status, result.File)
}

// FetchFromURL handles POST /api/v1/files/fetch — the URL Download
// pipeline: download a remote resource through the SSRF-safe fetcher, then
// feed it through the same Upload Pipeline ingest path.
func (h *Handlers) FetchFromURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	dl, err := h.Fetcher.Fetch(r.Context(), body.URL)
	if err != nil {
		logger.ErrorCtx(r.Context(), "url fetch failed", logger.SourceURL(body.URL), logger.Err(err))
		writeError(w, err)
		return
	}
	defer func() { _ = dl.Body.Close() }()

	mimeType := dl.MimeType
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	filename := lastPathSegment(body.URL)

	result, err := h.Upload.Ingest(r.Context(), dl.Body, filename, mimeType, dl.SizeHint)
	if err != nil {
		writeError(w, err)
		return
	}
	result.File.SourceURL = body.URL

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	writeJSON(w, status, result.File)
}

// GetFile handles GET /api/v1/files/{id}.
func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := h.Metadata.GetFile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !f.IsReady() {
		writeError(w, storeerrors.NewDeletedError(id))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// ListThumbnails handles GET /api/v1/files/{id}/thumbnails.
func (h *Handlers) ListThumbnails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	thumbs, err := h.Metadata.ListThumbnails(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thumbs)
}

// DeleteFile handles DELETE /api/v1/files/{id} — soft-delete only; physical
// cleanup happens on the reconciler's GC pass.
func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.SoftDelete.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TriggerReconcile handles POST /api/v1/reconcile — runs one reconciler
// cycle synchronously, for operators who don't want to wait for the cron.
func (h *Handlers) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconciler.RunOnce(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciliation complete"})
}

// GetProblems handles GET /api/v1/problems — the Problem Detector's report.
func (h *Handlers) GetProblems(w http.ResponseWriter, r *http.Request) {
	report, err := h.Detector.Scan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	for _, p := range report.Problems {
		h.Metrics.ObserveProblem(p.Code)
	}
	writeJSON(w, http.StatusOK, report)
}

// Liveness handles GET /health.
func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /health/ready — confirms the metadata store is reachable.
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.Metadata.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StatusSummary handles GET /api/v1/status — per-status record counts.
func (h *Handlers) StatusSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Metadata.CountByStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[model.FileStatus]int64, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func lastPathSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
		return trimmed[idx+1:]
	}
	return fmt.Sprintf("download-%d", len(rawURL))
}
