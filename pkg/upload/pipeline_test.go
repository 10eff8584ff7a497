package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bozonx/mediastore/pkg/blobstore"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/storeerrors"
)

var errNotImplemented = errors.New("not implemented in fake")

type fakeBlobs struct {
	puts    map[string][]byte
	copies  map[string]string
	deleted []string
	copyErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{puts: map[string][]byte{}, copies: map[string]string{}}
}

func (f *fakeBlobs) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.puts[key] = data
	return nil
}
func (f *fakeBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errNotImplemented
}
func (f *fakeBlobs) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return nil, errNotImplemented
}
func (f *fakeBlobs) Head(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	return nil, errNotImplemented
}
func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.puts, key)
	return nil
}
func (f *fakeBlobs) DeleteBatch(ctx context.Context, keys []string) (*blobstore.BatchDeleteResult, error) {
	return nil, errNotImplemented
}
func (f *fakeBlobs) Copy(ctx context.Context, srcKey, dstKey string) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	f.copies[srcKey] = dstKey
	f.puts[dstKey] = f.puts[srcKey]
	return nil
}
func (f *fakeBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, errNotImplemented
}
func (f *fakeBlobs) Close() error                          { return nil }
func (f *fakeBlobs) HealthCheck(ctx context.Context) error { return nil }

type fakeMeta struct {
	files           map[string]*model.File
	readyByChecksum map[string]*model.File // key: checksum+mimeType
	createErr       error
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{files: map[string]*model.File{}, readyByChecksum: map[string]*model.File{}}
}

func dedupKey(checksum, mimeType string) string { return checksum + "|" + mimeType }

func (f *fakeMeta) CreateFile(ctx context.Context, file *model.File) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.files[file.ID] = file
	return nil
}
func (f *fakeMeta) GetFile(ctx context.Context, id string) (*model.File, error) {
	file, ok := f.files[id]
	if !ok {
		return nil, storeerrors.NewNotFoundError(id)
	}
	return file, nil
}
func (f *fakeMeta) FindReadyByChecksum(ctx context.Context, checksum, mimeType string) (*model.File, error) {
	return f.readyByChecksum[dedupKey(checksum, mimeType)], nil
}
func (f *fakeMeta) CountReadyByChecksum(ctx context.Context, checksum, mimeType string) (int64, error) {
	return 0, errNotImplemented
}
func (f *fakeMeta) UpdateFileStatus(ctx context.Context, id string, expected, next model.FileStatus, failureReason string) error {
	file, ok := f.files[id]
	if !ok {
		return storeerrors.NewNotFoundError(id)
	}
	if file.Status != expected {
		return storeerrors.NewConflictError(id)
	}
	file.Status = next
	if next == model.FileStatusReady {
		f.readyByChecksum[dedupKey(file.Checksum, file.MimeType)] = file
	}
	return nil
}
func (f *fakeMeta) UpdateFileOptimizationStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, failureReason string) error {
	return errNotImplemented
}
func (f *fakeMeta) SoftDeleteFile(ctx context.Context, id string) error { return errNotImplemented }
func (f *fakeMeta) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) ListByStatusOlderThan(ctx context.Context, status model.FileStatus, cutoff time.Time, limit int) ([]*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) ListReadyBatch(ctx context.Context, afterUpdatedAt time.Time, limit int) ([]*model.File, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) HardDeleteFile(ctx context.Context, id string) error { return errNotImplemented }
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
	return nil, errNotImplemented
}
func (f *fakeMeta) HardDeleteThumbnail(ctx context.Context, id string) error { return errNotImplemented }
func (f *fakeMeta) CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error) {
	return nil, errNotImplemented
}
func (f *fakeMeta) Close() error                           { return nil }
func (f *fakeMeta) HealthCheck(ctx context.Context) error { return nil }

func newTestPipeline(blobs *fakeBlobs, meta *fakeMeta) *Pipeline {
	return New(blobs, meta, nil, Config{
		MaxFileSize:      1024,
		AllowedMimeTypes: map[string]bool{"image/png": true},
		TempKeyPrefix:    "temp/",
	})
}

func TestIngest_PromotesNewUploadToReady(t *testing.T) {
	t.Parallel()
	blobs, meta := newFakeBlobs(), newFakeMeta()
	p := newTestPipeline(blobs, meta)

	payload := bytes.NewBufferString("hello world")
	result, err := p.Ingest(context.Background(), payload, "hello.png", "image/png", int64(payload.Len()))
	require.NoError(t, err)

	assert.False(t, result.Deduplicated)
	assert.Equal(t, model.FileStatusReady, result.File.Status)
	assert.Equal(t, int64(len("hello world")), result.File.SizeBytes)
	assert.Contains(t, blobs.puts, result.File.BlobKey)
	assert.Len(t, blobs.puts, 1, "temp key must not remain after promotion")
	assert.Len(t, blobs.deleted, 1)
}

func TestIngest_RejectsDisallowedMimeType(t *testing.T) {
	t.Parallel()
	blobs, meta := newFakeBlobs(), newFakeMeta()
	p := newTestPipeline(blobs, meta)

	_, err := p.Ingest(context.Background(), bytes.NewBufferString("x"), "f.pdf", "application/pdf", 1)
	require.Error(t, err)
	se, ok := err.(*storeerrors.StoreError)
	require.True(t, ok)
	assert.Equal(t, storeerrors.ErrUnsupportedMimeType, se.Code)
}

func TestIngest_RejectsOversizedPayload(t *testing.T) {
	t.Parallel()
	blobs, meta := newFakeBlobs(), newFakeMeta()
	p := newTestPipeline(blobs, meta)

	oversized := bytes.Repeat([]byte("a"), 2048)
	_, err := p.Ingest(context.Background(), bytes.NewReader(oversized), "big.png", "image/png", 0)
	require.Error(t, err)
}

func TestIngest_DeduplicatesAgainstExistingReadyFile(t *testing.T) {
	t.Parallel()
	blobs, meta := newFakeBlobs(), newFakeMeta()
	p := newTestPipeline(blobs, meta)

	payload := "same bytes"
	first, err := p.Ingest(context.Background(), bytes.NewBufferString(payload), "a.png", "image/png", int64(len(payload)))
	require.NoError(t, err)
	require.False(t, first.Deduplicated)

	second, err := p.Ingest(context.Background(), bytes.NewBufferString(payload), "b.png", "image/png", int64(len(payload)))
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.File.ID, second.File.ID)
}
