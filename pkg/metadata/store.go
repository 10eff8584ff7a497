// Package metadata defines the metadata store interface for File and
// Thumbnail records: CRUD, dedup lookup, and the compare-and-set status
// transitions the Upload Pipeline, Optimization Engine, and Soft-Delete &
// GC rely on to serialize concurrent workers without in-process locking.
package metadata

import (
	"context"
	"time"

	"github.com/bozonx/mediastore/pkg/model"
)

// Store is the metadata persistence interface backing every pipeline.
type Store interface {
	// CreateFile inserts a new File record.
	CreateFile(ctx context.Context, f *model.File) error

	// GetFile fetches a File by ID, including soft-deleted ones.
	GetFile(ctx context.Context, id string) (*model.File, error)

	// FindReadyByChecksum returns the ready, non-deleted File sharing
	// (checksum, mimeType), or nil if none exists. This is the dedup lookup.
	FindReadyByChecksum(ctx context.Context, checksum, mimeType string) (*model.File, error)

	// CountReadyByChecksum counts non-deleted, ready Files sharing
	// (checksum, mimeType). Used by GC to decide whether a blob is still
	// referenced before physically deleting it.
	CountReadyByChecksum(ctx context.Context, checksum, mimeType string) (int64, error)

	// UpdateFileStatus performs a compare-and-set transition: the row is
	// updated only if its current status equals expected. Returns
	// storeerrors.ErrConflict if another writer already moved it.
	UpdateFileStatus(ctx context.Context, id string, expected, next model.FileStatus, failureReason string) error

	// UpdateFileOptimizationStatus performs a compare-and-set transition on
	// OptimizationStatus only; File.Status is untouched (see DESIGN.md Open
	// Question #1).
	UpdateFileOptimizationStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, failureReason string) error

	// SoftDeleteFile sets DeletedAt on a ready file that isn't already deleted.
	SoftDeleteFile(ctx context.Context, id string) error

	// ListSoftDeletedBefore returns soft-deleted files whose DeletedAt is
	// older than cutoff, for the reconciler's GC pass.
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.File, error)

	// ListByStatusOlderThan returns files in the given status whose
	// UpdatedAt predates cutoff, for the reconciler's bad-status-aging pass.
	ListByStatusOlderThan(ctx context.Context, status model.FileStatus, cutoff time.Time, limit int) ([]*model.File, error)

	// ListReadyBatch returns a page of ready files for the reconciler's
	// missing-blob audit, ordered by UpdatedAt so repeated cycles sweep the
	// whole table over time.
	ListReadyBatch(ctx context.Context, afterUpdatedAt time.Time, limit int) ([]*model.File, error)

	// HardDeleteFile permanently removes the row. Callers must have already
	// confirmed the blob is unreferenced and deleted it from the blob store.
	HardDeleteFile(ctx context.Context, id string) error

	// CreateThumbnail inserts a new Thumbnail record.
	CreateThumbnail(ctx context.Context, t *model.Thumbnail) error

	// GetThumbnail fetches a Thumbnail by (fileID, paramsHash), or nil if absent.
	GetThumbnail(ctx context.Context, fileID, paramsHash string) (*model.Thumbnail, error)

	// ListThumbnails lists all thumbnails for a file.
	ListThumbnails(ctx context.Context, fileID string) ([]*model.Thumbnail, error)

	// UpdateThumbnailStatus performs a compare-and-set transition on a thumbnail.
	UpdateThumbnailStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, blobKey string, width, height int, sizeBytes int64, failureReason string) error

	// ListThumbnailsOlderThan returns thumbnails older than cutoff, for the
	// reconciler's old-thumbnail-eviction pass.
	ListThumbnailsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Thumbnail, error)

	// HardDeleteThumbnail permanently removes a thumbnail row.
	HardDeleteThumbnail(ctx context.Context, id string) error

	// ListOrphanedTempUploads is left to the blob store's List() over the
	// temp key prefix; the metadata store has no record of temp uploads by
	// design (see SPEC_FULL.md §4.4(d)).

	// CountByStatus aggregates record counts per status, for problem detection summaries.
	CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error)

	// Close releases underlying database resources.
	Close() error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}
