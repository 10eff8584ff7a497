// Package softdelete implements Soft-Delete & Reference-Counted GC (spec
// §4.3): deleting a File only marks it, leaving the blob and thumbnails in
// place until a collection pass confirms no other ready record shares the
// same (checksum, mimeType) — content dedup means the physical bytes may
// still be serving a different File.
package softdelete

import (
	"context"
	"fmt"
	"time"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/blobstore"
	"github.com/bozonx/mediastore/pkg/metadata"
	"github.com/bozonx/mediastore/pkg/metadata/dedupcache"
	"github.com/bozonx/mediastore/pkg/model"
)

// Manager performs soft-delete and the reference-counted GC sweep.
type Manager struct {
	blobs    blobstore.Store
	metadata metadata.Store
	dedup    *dedupcache.Cache // optional; invalidated on physical delete
}

// New constructs a soft-delete/GC Manager.
func New(blobs blobstore.Store, meta metadata.Store, dedup *dedupcache.Cache) *Manager {
	return &Manager{blobs: blobs, metadata: meta, dedup: dedup}
}

// Delete soft-deletes a ready File, making it immediately unreadable
// without touching its blob or thumbnails.
func (m *Manager) Delete(ctx context.Context, fileID string) error {
	if err := m.metadata.SoftDeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to soft-delete file: %w", err)
	}
	logger.InfoCtx(ctx, "file soft-deleted", logger.FileID(fileID))
	return nil
}

// Result summarizes one GC sweep.
type Result struct {
	Scanned       int
	BlobsDeleted  int
	RecordsPurged int
	StillShared   int // soft-deleted records whose blob is kept alive by another ready File
}

// CollectGarbage sweeps soft-deleted Files whose DeletedAt predates
// gracePeriod, and for each one whose (checksum, mimeType) has no
// remaining ready owner, deletes the blob, deletes its thumbnails, and
// hard-deletes the metadata row. Files still referenced by another ready
// record are counted but left for a later sweep (the owning record keeps
// the blob key alive, so there's nothing unsafe about retrying later).
func (m *Manager) CollectGarbage(ctx context.Context, gracePeriod time.Duration, batchSize int) (*Result, error) {
	cutoff := time.Now().Add(-gracePeriod)
	candidates, err := m.metadata.ListSoftDeletedBefore(ctx, cutoff, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list soft-deleted files: %w", err)
	}

	res := &Result{Scanned: len(candidates)}
	for _, f := range candidates {
		purged, err := m.collectOne(ctx, f)
		if err != nil {
			logger.ErrorCtx(ctx, "gc sweep failed for file", logger.FileID(f.ID), logger.Err(err))
			continue
		}
		if purged {
			res.BlobsDeleted++
			res.RecordsPurged++
		} else {
			res.StillShared++
		}
	}

	logger.InfoCtx(ctx, "gc sweep complete",
		logger.RecordsTotal(int64(res.Scanned)), logger.BlobsDeleted(int64(res.BlobsDeleted)))
	return res, nil
}

func (m *Manager) collectOne(ctx context.Context, f *model.File) (bool, error) {
	refs, err := m.metadata.CountReadyByChecksum(ctx, f.Checksum, f.MimeType)
	if err != nil {
		return false, fmt.Errorf("failed to count references: %w", err)
	}
	if refs > 0 {
		return false, nil
	}

	thumbs, err := m.metadata.ListThumbnails(ctx, f.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list thumbnails: %w", err)
	}
	for _, t := range thumbs {
		if t.BlobKey == "" {
			continue
		}
		if err := m.blobs.Delete(ctx, t.BlobKey); err != nil {
			return false, fmt.Errorf("failed to delete thumbnail blob %s: %w", t.BlobKey, err)
		}
		if err := m.metadata.HardDeleteThumbnail(ctx, t.ID); err != nil {
			return false, fmt.Errorf("failed to purge thumbnail record: %w", err)
		}
	}

	if err := m.blobs.Delete(ctx, f.BlobKey); err != nil {
		return false, fmt.Errorf("failed to delete blob %s: %w", f.BlobKey, err)
	}
	if err := m.metadata.HardDeleteFile(ctx, f.ID); err != nil {
		return false, fmt.Errorf("failed to purge file record: %w", err)
	}

	if m.dedup != nil {
		_ = m.dedup.Invalidate(f.Checksum, f.MimeType)
	}

	logger.InfoCtx(ctx, "file garbage collected", logger.FileID(f.ID), logger.Key(f.BlobKey))
	return true, nil
}
