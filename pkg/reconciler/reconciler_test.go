package reconciler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bozonx/mediastore/pkg/blobstore"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/softdelete"
)

type fakeBlobs struct {
	heads      map[string]*blobstore.ObjectInfo
	listResult []string
	deleted    []string
	batchErr   error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{heads: map[string]*blobstore.ObjectInfo{}}
}

func (f *fakeBlobs) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	return errNotImplemented
}
func (f *fakeBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errNotImplemented
}
func (f *fakeBlobs) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return nil, errNotImplemented
}
func (f *fakeBlobs) Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	info, ok := f.heads[key]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return info, nil
}
func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
func (f *fakeBlobs) DeleteBatch(ctx context.Context, keys []string) (*blobstore.BatchDeleteResult, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	f.deleted = append(f.deleted, keys...)
	return &blobstore.BatchDeleteResult{Deleted: keys}, nil
}
func (f *fakeBlobs) Copy(ctx context.Context, srcKey, dstKey string) error { return errNotImplemented }
func (f *fakeBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	return f.listResult, nil
}
func (f *fakeBlobs) Close() error                          { return nil }
func (f *fakeBlobs) HealthCheck(ctx context.Context) error { return nil }

var errNotImplemented = errors.New("not implemented in fake")

type fakeMeta struct {
	softDeletedBefore  []*model.File
	readyBatch         []*model.File
	statusUpdates      map[string]model.FileStatus
	statusUpdateErrs   map[string]error
	agedPending        []*model.File
	oldThumbnails      []*model.Thumbnail
	hardDeletedThumbs  []string
	refCounts          map[string]int64
}

func (f *fakeMeta) CreateFile(ctx context.Context, file *model.File) error { return errNotImplemented }
func (f *fakeMeta) GetFile(ctx context.Context, id string) (*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) FindReadyByChecksum(ctx context.Context, checksum, mimeType string) (*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) CountReadyByChecksum(ctx context.Context, checksum, mimeType string) (int64, error) {
	return f.refCounts[checksum], nil
}
func (f *fakeMeta) UpdateFileStatus(ctx context.Context, id string, expected, next model.FileStatus, failureReason string) error {
	if err, ok := f.statusUpdateErrs[id]; ok {
		return err
	}
	if f.statusUpdates == nil {
		f.statusUpdates = map[string]model.FileStatus{}
	}
	f.statusUpdates[id] = next
	return nil
}
func (f *fakeMeta) UpdateFileOptimizationStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, failureReason string) error {
	return errNotImplemented
}
func (f *fakeMeta) SoftDeleteFile(ctx context.Context, id string) error { return errNotImplemented }
func (f *fakeMeta) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.File, error) {
	return f.softDeletedBefore, nil
}
func (f *fakeMeta) ListByStatusOlderThan(ctx context.Context, status model.FileStatus, cutoff time.Time, limit int) ([]*model.File, error) {
	return f.agedPending, nil
}
func (f *fakeMeta) ListReadyBatch(ctx context.Context, afterUpdatedAt time.Time, limit int) ([]*model.File, error) {
	return f.readyBatch, nil
}
func (f *fakeMeta) HardDeleteFile(ctx context.Context, id string) error { return nil }
func (f *fakeMeta) CreateThumbnail(ctx context.Context, t *model.Thumbnail) error {
	return errNotImplemented
}
func (f *fakeMeta) GetThumbnail(ctx context.Context, fileID, paramsHash string) (*model.Thumbnail, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) ListThumbnails(ctx context.Context, fileID string) ([]*model.Thumbnail, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) UpdateThumbnailStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, blobKey string, width, height int, sizeBytes int64, failureReason string) error {
	return errNotImplemented
}
func (f *fakeMeta) ListThumbnailsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Thumbnail, error) {
	return f.oldThumbnails, nil
}
func (f *fakeMeta) HardDeleteThumbnail(ctx context.Context, id string) error {
	f.hardDeletedThumbs = append(f.hardDeletedThumbs, id)
	return nil
}
func (f *fakeMeta) CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) Close() error                           { return nil }
func (f *fakeMeta) HealthCheck(ctx context.Context) error { return nil }

func newTestReconciler(blobs *fakeBlobs, meta *fakeMeta) *Reconciler {
	gc := softdelete.New(blobs, meta, nil)
	return New(blobs, meta, gc, Config{
		Schedule:              "@every 1h",
		SoftDeleteGracePeriod: time.Hour,
		TempFileMaxAge:        time.Hour,
		BadStatusMaxAge:       time.Hour,
		OldThumbnailMaxAge:    time.Hour,
		BatchSize:             10,
		MissingAuditBatchSize: 10,
		TempKeyPrefix:         "temp/",
	})
}

func TestPassCorruptedRecords_MarksMissingWhenBlobAbsent(t *testing.T) {
	t.Parallel()
	blobs := newFakeBlobs() // no heads registered: every key is absent
	meta := &fakeMeta{readyBatch: []*model.File{{ID: "f-1", BlobKey: "objects/abc", UpdatedAt: time.Now()}}}
	r := newTestReconciler(blobs, meta)

	fixed, err := r.passCorruptedRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	assert.Equal(t, model.FileStatusMissing, meta.statusUpdates["f-1"])
}

func TestPassCorruptedRecords_LeavesPresentBlobsAlone(t *testing.T) {
	t.Parallel()
	blobs := newFakeBlobs()
	blobs.heads["objects/abc"] = &blobstore.ObjectInfo{Key: "objects/abc"}
	meta := &fakeMeta{readyBatch: []*model.File{{ID: "f-1", BlobKey: "objects/abc", UpdatedAt: time.Now()}}}
	r := newTestReconciler(blobs, meta)

	fixed, err := r.passCorruptedRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fixed)
	assert.Empty(t, meta.statusUpdates)
}

func TestPassBadStatusAging_FailsStalePendingFiles(t *testing.T) {
	t.Parallel()
	blobs := newFakeBlobs()
	meta := &fakeMeta{agedPending: []*model.File{{ID: "f-1"}, {ID: "f-2"}}}
	r := newTestReconciler(blobs, meta)

	fixed, err := r.passBadStatusAging(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)
	assert.Equal(t, model.FileStatusFailed, meta.statusUpdates["f-1"])
	assert.Equal(t, model.FileStatusFailed, meta.statusUpdates["f-2"])
}

func TestPassOrphanedTempFiles_DeletesOnlyStaleKeys(t *testing.T) {
	t.Parallel()
	blobs := newFakeBlobs()
	blobs.listResult = []string{"temp/old", "temp/fresh"}
	blobs.heads["temp/old"] = &blobstore.ObjectInfo{LastModified: time.Now().Add(-2 * time.Hour)}
	blobs.heads["temp/fresh"] = &blobstore.ObjectInfo{LastModified: time.Now()}
	meta := &fakeMeta{}
	r := newTestReconciler(blobs, meta)

	fixed, err := r.passOrphanedTempFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	assert.Equal(t, []string{"temp/old"}, blobs.deleted)
}

func TestPassOldThumbnails_DeletesBlobAndRecord(t *testing.T) {
	t.Parallel()
	blobs := newFakeBlobs()
	meta := &fakeMeta{oldThumbnails: []*model.Thumbnail{{ID: "t-1", BlobKey: "thumbnails/f-1/hash"}}}
	r := newTestReconciler(blobs, meta)

	fixed, err := r.passOldThumbnails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	assert.Equal(t, []string{"thumbnails/f-1/hash"}, blobs.deleted)
	assert.Equal(t, []string{"t-1"}, meta.hardDeletedThumbs)
}

func TestRunOnce_ContinuesPastIndividualPassFailures(t *testing.T) {
	t.Parallel()
	blobs := newFakeBlobs()
	// The orphaned-temp pass (run before the thumbnail pass) fails on its batch delete.
	blobs.listResult = []string{"temp/old"}
	blobs.heads["temp/old"] = &blobstore.ObjectInfo{LastModified: time.Now().Add(-2 * time.Hour)}
	blobs.batchErr = errors.New("batch delete failed")
	meta := &fakeMeta{
		oldThumbnails: []*model.Thumbnail{{ID: "t-1", BlobKey: "thumbnails/f-1/hash"}},
	}
	r := newTestReconciler(blobs, meta)

	err := r.RunOnce(context.Background())
	require.NoError(t, err, "RunOnce logs per-pass failures but never aborts the cycle")
	assert.Equal(t, []string{"t-1"}, meta.hardDeletedThumbs, "later passes still ran")
}
