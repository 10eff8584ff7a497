package problems

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bozonx/mediastore/pkg/model"
)

// fakeStore implements metadata.Store with in-memory slices, returning
// canned results for the list methods the Problem Detector calls and
// erroring on everything else (the detector never needs the rest).
type fakeStore struct {
	missingFiles       []*model.File
	stalePendingFiles  []*model.File
	oldThumbnails      []*model.Thumbnail
	staleSoftDeletes   []*model.File
	statusCounts       map[model.FileStatus]int64
	countByStatusErr   error
}

func (f *fakeStore) CreateFile(ctx context.Context, file *model.File) error { return errNotImplemented }
func (f *fakeStore) GetFile(ctx context.Context, id string) (*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) FindReadyByChecksum(ctx context.Context, checksum, mimeType string) (*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) CountReadyByChecksum(ctx context.Context, checksum, mimeType string) (int64, error) {
	return 0, errNotImplemented
}
func (f *fakeStore) UpdateFileStatus(ctx context.Context, id string, expected, next model.FileStatus, failureReason string) error {
	return errNotImplemented
}
func (f *fakeStore) UpdateFileOptimizationStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, failureReason string) error {
	return errNotImplemented
}
func (f *fakeStore) SoftDeleteFile(ctx context.Context, id string) error { return errNotImplemented }
func (f *fakeStore) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.File, error) {
	return f.staleSoftDeletes, nil
}
func (f *fakeStore) ListByStatusOlderThan(ctx context.Context, status model.FileStatus, cutoff time.Time, limit int) ([]*model.File, error) {
	switch status {
	case model.FileStatusMissing:
		return f.missingFiles, nil
	case model.FileStatusPending:
		return f.stalePendingFiles, nil
	default:
		return nil, nil
	}
}
func (f *fakeStore) ListReadyBatch(ctx context.Context, afterUpdatedAt time.Time, limit int) ([]*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) HardDeleteFile(ctx context.Context, id string) error { return errNotImplemented }
func (f *fakeStore) CreateThumbnail(ctx context.Context, t *model.Thumbnail) error {
	return errNotImplemented
}
func (f *fakeStore) GetThumbnail(ctx context.Context, fileID, paramsHash string) (*model.Thumbnail, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) ListThumbnails(ctx context.Context, fileID string) ([]*model.Thumbnail, error) {
	return nil, errNotImplemented
}
func (f *fakeStore) UpdateThumbnailStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, blobKey string, width, height int, sizeBytes int64, failureReason string) error {
	return errNotImplemented
}
func (f *fakeStore) ListThumbnailsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Thumbnail, error) {
	return f.oldThumbnails, nil
}
func (f *fakeStore) HardDeleteThumbnail(ctx context.Context, id string) error {
	return errNotImplemented
}
func (f *fakeStore) CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error) {
	if f.countByStatusErr != nil {
		return nil, f.countByStatusErr
	}
	return f.statusCounts, nil
}
func (f *fakeStore) Close() error                           { return nil }
func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }

var errNotImplemented = errors.New("not implemented in fake store")

func TestScan_AggregatesAllChecks(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &fakeStore{
		missingFiles: []*model.File{{ID: "f-missing", BlobKey: "objects/deadbeef"}},
		stalePendingFiles: []*model.File{
			{ID: "f-pending", UpdatedAt: now.Add(-2 * time.Hour)},
		},
		oldThumbnails: []*model.Thumbnail{
			{ID: "t-stuck", FileID: "f-stuck", OptimizationStatus: model.OptimizationProcessing, UpdatedAt: now.Add(-time.Hour)},
			{ID: "t-done", FileID: "f-done", OptimizationStatus: model.OptimizationReady, UpdatedAt: now.Add(-time.Hour)},
		},
		staleSoftDeletes: []*model.File{{ID: "f-stale-deleted"}},
		statusCounts:     map[model.FileStatus]int64{model.FileStatusReady: 10},
	}

	d := New(store, Thresholds{
		StalePendingAge:      time.Hour,
		StuckOptimizationAge: time.Minute,
		StaleSoftDeleteAge:   time.Hour,
	})

	report, err := d.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), report.StatusCounts[model.FileStatusReady])

	codes := make(map[string]int)
	for _, p := range report.Problems {
		codes[p.Code]++
	}
	assert.Equal(t, 1, codes[CodeMissingBlob])
	assert.Equal(t, 1, codes[CodeStalePending])
	assert.Equal(t, 1, codes[CodeStuckOptimization], "the ready thumbnail must not be flagged")
	assert.Equal(t, 1, codes[CodeStaleSoftDelete])
}

func TestScan_FailsOnCountByStatusError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{countByStatusErr: errors.New("db unreachable")}
	d := New(store, Thresholds{})

	_, err := d.Scan(context.Background())
	require.Error(t, err)
}

func TestScan_OneCheckFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	store := &fakeStoreWithListErr{
		fakeStore: fakeStore{
			staleSoftDeletes: []*model.File{{ID: "f-stale-deleted"}},
			statusCounts:     map[model.FileStatus]int64{},
		},
	}

	d := New(store, Thresholds{})
	report, err := d.Scan(context.Background())
	require.NoError(t, err)

	var sawCheckFailed, sawStaleSoftDelete bool
	for _, p := range report.Problems {
		if p.Code == "check_failed" {
			sawCheckFailed = true
		}
		if p.Code == CodeStaleSoftDelete {
			sawStaleSoftDelete = true
		}
	}
	assert.True(t, sawCheckFailed)
	assert.True(t, sawStaleSoftDelete)
}

// fakeStoreWithListErr breaks ListByStatusOlderThan so the missing-blob and
// stale-pending checks fail, while leaving ListSoftDeletedBefore working —
// proving Scan isolates check failures instead of aborting the whole pass.
type fakeStoreWithListErr struct {
	fakeStore
}

func (f *fakeStoreWithListErr) ListByStatusOlderThan(ctx context.Context, status model.FileStatus, cutoff time.Time, limit int) ([]*model.File, error) {
	return nil, errors.New("list failed")
}
