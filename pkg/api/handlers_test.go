package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bozonx/mediastore/pkg/blobstore"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/problems"
	"github.com/bozonx/mediastore/pkg/softdelete"
	"github.com/bozonx/mediastore/pkg/storeerrors"
)

var errNotImplemented = errors.New("not implemented in fake")

// fakeMeta implements metadata.Store, doing real work only for the methods
// the handlers under test actually call.
type fakeMeta struct {
	files             map[string]*model.File
	thumbnails        map[string][]*model.Thumbnail
	statusCounts      map[model.FileStatus]int64
	healthErr         error
	softDeletedIDs    []string
	softDeletedBefore []*model.File
	refCounts         map[string]int64
}

func (f *fakeMeta) CreateFile(ctx context.Context, file *model.File) error { return errNotImplemented }
func (f *fakeMeta) GetFile(ctx context.Context, id string) (*model.File, error) {
	file, ok := f.files[id]
	if !ok {
		return nil, storeerrors.NewNotFoundError(id)
	}
	return file, nil
}
func (f *fakeMeta) FindReadyByChecksum(ctx context.Context, checksum, mimeType string) (*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) CountReadyByChecksum(ctx context.Context, checksum, mimeType string) (int64, error) {
	return f.refCounts[checksum], nil
}
func (f *fakeMeta) UpdateFileStatus(ctx context.Context, id string, expected, next model.FileStatus, failureReason string) error {
	return errNotImplemented
}
func (f *fakeMeta) UpdateFileOptimizationStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, failureReason string) error {
	return errNotImplemented
}
func (f *fakeMeta) SoftDeleteFile(ctx context.Context, id string) error {
	f.softDeletedIDs = append(f.softDeletedIDs, id)
	return nil
}
func (f *fakeMeta) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.File, error) {
	return f.softDeletedBefore, nil
}
func (f *fakeMeta) ListByStatusOlderThan(ctx context.Context, status model.FileStatus, cutoff time.Time, limit int) ([]*model.File, error) {
	return nil, nil
}
func (f *fakeMeta) ListReadyBatch(ctx context.Context, afterUpdatedAt time.Time, limit int) ([]*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) HardDeleteFile(ctx context.Context, id string) error { return nil }
func (f *fakeMeta) CreateThumbnail(ctx context.Context, t *model.Thumbnail) error {
	return errNotImplemented
}
func (f *fakeMeta) GetThumbnail(ctx context.Context, fileID, paramsHash string) (*model.Thumbnail, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) ListThumbnails(ctx context.Context, fileID string) ([]*model.Thumbnail, error) {
	return f.thumbnails[fileID], nil
}
func (f *fakeMeta) UpdateThumbnailStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, blobKey string, width, height int, sizeBytes int64, failureReason string) error {
	return errNotImplemented
}
func (f *fakeMeta) ListThumbnailsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Thumbnail, error) {
	return nil, nil
}
func (f *fakeMeta) HardDeleteThumbnail(ctx context.Context, id string) error { return nil }
func (f *fakeMeta) CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error) {
	return f.statusCounts, nil
}
func (f *fakeMeta) Close() error { return nil }
func (f *fakeMeta) HealthCheck(ctx context.Context) error { return f.healthErr }

func requestWithID(method, target, id string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetFile_ReturnsReadyFile(t *testing.T) {
	t.Parallel()
	meta := &fakeMeta{files: map[string]*model.File{
		"f-1": {ID: "f-1", Status: model.FileStatusReady, MimeType: "image/png"},
	}}
	h := &Handlers{Metadata: meta}

	w := httptest.NewRecorder()
	h.GetFile(w, requestWithID(http.MethodGet, "/api/v1/files/f-1", "f-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	var got model.File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "f-1", got.ID)
}

func TestGetFile_ReturnsGoneForSoftDeletedFile(t *testing.T) {
	t.Parallel()
	deletedAt := time.Now()
	meta := &fakeMeta{files: map[string]*model.File{
		"f-1": {ID: "f-1", Status: model.FileStatusReady, DeletedAt: &deletedAt},
	}}
	h := &Handlers{Metadata: meta}

	w := httptest.NewRecorder()
	h.GetFile(w, requestWithID(http.MethodGet, "/api/v1/files/f-1", "f-1"))

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestGetFile_ReturnsNotFoundForUnknownID(t *testing.T) {
	t.Parallel()
	meta := &fakeMeta{files: map[string]*model.File{}}
	h := &Handlers{Metadata: meta}

	w := httptest.NewRecorder()
	h.GetFile(w, requestWithID(http.MethodGet, "/api/v1/files/missing", "missing"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListThumbnails_ReturnsThumbnailsForFile(t *testing.T) {
	t.Parallel()
	meta := &fakeMeta{thumbnails: map[string][]*model.Thumbnail{
		"f-1": {{ID: "t-1", FileID: "f-1"}},
	}}
	h := &Handlers{Metadata: meta}

	w := httptest.NewRecorder()
	h.ListThumbnails(w, requestWithID(http.MethodGet, "/api/v1/files/f-1/thumbnails", "f-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	var got []*model.Thumbnail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 1)
}

func TestLiveness_AlwaysOK(t *testing.T) {
	t.Parallel()
	h := &Handlers{}
	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness_ReportsUnavailableWhenStoreUnreachable(t *testing.T) {
	t.Parallel()
	meta := &fakeMeta{healthErr: errors.New("db down")}
	h := &Handlers{Metadata: meta}

	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusSummary_ReturnsCounts(t *testing.T) {
	t.Parallel()
	meta := &fakeMeta{statusCounts: map[model.FileStatus]int64{model.FileStatusReady: 5}}
	h := &Handlers{Metadata: meta}

	w := httptest.NewRecorder()
	h.StatusSummary(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got map[model.FileStatus]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(5), got[model.FileStatusReady])
}

func TestDeleteFile_SoftDeletesAndReturnsNoContent(t *testing.T) {
	t.Parallel()
	meta := &fakeMeta{}
	sd := softdelete.New(softDeleteNoopBlobs{}, meta, nil)
	h := &Handlers{Metadata: meta, SoftDelete: sd}

	w := httptest.NewRecorder()
	h.DeleteFile(w, requestWithID(http.MethodDelete, "/api/v1/files/f-1", "f-1"))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"f-1"}, meta.softDeletedIDs)
}

func TestGetProblems_ReturnsReportWithNilMetrics(t *testing.T) {
	t.Parallel()
	meta := &fakeMeta{
		statusCounts:      map[model.FileStatus]int64{model.FileStatusReady: 1},
		softDeletedBefore: []*model.File{{ID: "f-1"}},
	}
	detector := problems.New(meta, problems.Thresholds{StaleSoftDeleteAge: time.Hour})
	h := &Handlers{Metadata: meta, Detector: detector, Metrics: nil}

	w := httptest.NewRecorder()
	h.GetProblems(w, httptest.NewRequest(http.MethodGet, "/api/v1/problems", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

// softDeleteNoopBlobs is a blobstore.Store fake for DeleteFile, which only
// soft-deletes metadata and never touches blob storage; every method here
// is unreachable from the test and errors if that assumption ever breaks.
type softDeleteNoopBlobs struct{}

func (softDeleteNoopBlobs) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	return errNotImplemented
}
func (softDeleteNoopBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errNotImplemented
}
func (softDeleteNoopBlobs) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return nil, errNotImplemented
}
func (softDeleteNoopBlobs) Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	return nil, errNotImplemented
}
func (softDeleteNoopBlobs) Delete(ctx context.Context, key string) error { return errNotImplemented }
func (softDeleteNoopBlobs) DeleteBatch(ctx context.Context, keys []string) (*blobstore.BatchDeleteResult, error) {
	return nil, errNotImplemented
}
func (softDeleteNoopBlobs) Copy(ctx context.Context, srcKey, dstKey string) error {
	return errNotImplemented
}
func (softDeleteNoopBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, errNotImplemented
}
func (softDeleteNoopBlobs) Close() error                          { return nil }
func (softDeleteNoopBlobs) HealthCheck(ctx context.Context) error { return nil }
