// Package reconciler implements the Cleanup Reconciler (spec §4.4): a
// cron-scheduled sweep that runs five ordered passes over the metadata and
// blob stores to repair drift that normal request handling doesn't catch —
// soft-deleted files past their grace period, records whose blob vanished
// out from under them, uploads stuck in a non-terminal status, orphaned
// temp keys left by a crashed upload, and stale thumbnails.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/blobstore"
	"github.com/bozonx/mediastore/pkg/metadata"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/softdelete"
)

// Config controls pass schedule and per-pass thresholds.
type Config struct {
	Schedule              string // cron expression, e.g. "@every 15m"
	SoftDeleteGracePeriod time.Duration
	TempFileMaxAge        time.Duration
	BadStatusMaxAge       time.Duration
	OldThumbnailMaxAge    time.Duration
	BatchSize             int
	MissingAuditBatchSize int
	TempKeyPrefix         string
}

// Reconciler runs the cleanup passes on a cron schedule.
type Reconciler struct {
	blobs    blobstore.Store
	metadata metadata.Store
	gc       *softdelete.Manager
	cfg      Config
	cron     *cron.Cron

	// cursor for the missing-blob audit's rolling batch scan (spec §4.4(b));
	// advances across cycles so the whole ready-set is eventually covered.
	auditCursor time.Time
}

// New constructs a Reconciler.
func New(blobs blobstore.Store, meta metadata.Store, gc *softdelete.Manager, cfg Config) *Reconciler {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.MissingAuditBatchSize == 0 {
		cfg.MissingAuditBatchSize = 100
	}
	return &Reconciler{blobs: blobs, metadata: meta, gc: gc, cfg: cfg}
}

// Start schedules RunOnce on cfg.Schedule and begins running it.
func (r *Reconciler) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		if err := r.RunOnce(ctx); err != nil {
			logger.ErrorCtx(ctx, "reconciler cycle failed", logger.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconciler: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for any in-flight cycle to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}

// Summary aggregates the outcome of one reconciliation cycle's passes.
type Summary struct {
	SoftDeleteGC      *softdelete.Result
	CorruptedFound    int
	BadStatusAged     int
	OrphanedTempFound int
	OldThumbnailsGone int
}

// RunOnce executes all five passes in order. A pass that fails is logged and
// the remaining passes still run; the returned error is always nil, and the
// per-pass Summary is only logged (as a combined fixed count), not returned.
// Passes are intentionally ordered: GC first (frees the most space), then
// corrupted-record detection (so later passes see the corrected status),
// then bad-status aging, then the two low-priority cleanup sweeps.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	logger.InfoCtx(ctx, "reconciler cycle starting")
	summary := &Summary{}
	var err error

	summary.SoftDeleteGC, err = r.passSoftDeletedFiles(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "soft-delete GC pass failed", logger.Err(err))
	}

	summary.CorruptedFound, err = r.passCorruptedRecords(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "corrupted-record pass failed", logger.Err(err))
	}

	summary.BadStatusAged, err = r.passBadStatusAging(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "bad-status aging pass failed", logger.Err(err))
	}

	summary.OrphanedTempFound, err = r.passOrphanedTempFiles(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "orphaned temp file pass failed", logger.Err(err))
	}

	summary.OldThumbnailsGone, err = r.passOldThumbnails(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "old thumbnail pass failed", logger.Err(err))
	}

	logger.InfoCtx(ctx, "reconciler cycle complete",
		logger.PassName("all"), logger.RecordsFixed(int64(
			summary.CorruptedFound+summary.BadStatusAged+summary.OrphanedTempFound+summary.OldThumbnailsGone)))
	return nil
}

// passSoftDeletedFiles (a): physically collect soft-deleted files past their grace period.
func (r *Reconciler) passSoftDeletedFiles(ctx context.Context) (*softdelete.Result, error) {
	res, err := r.gc.CollectGarbage(ctx, r.cfg.SoftDeleteGracePeriod, r.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "pass complete: soft-deleted files",
		logger.PassName("soft_deleted_files"), logger.RecordsTotal(int64(res.Scanned)), logger.BlobsDeleted(int64(res.BlobsDeleted)))
	return res, nil
}

// passCorruptedRecords (b): bounded HeadObject audit over a rolling batch of
// ready records, transitioning any whose blob the store confirms absent to
// FileStatusMissing (Open Question decision #2).
func (r *Reconciler) passCorruptedRecords(ctx context.Context) (int, error) {
	files, err := r.metadata.ListReadyBatch(ctx, r.auditCursor, r.cfg.MissingAuditBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list ready batch: %w", err)
	}

	fixed := 0
	for _, f := range files {
		if f.UpdatedAt.After(r.auditCursor) {
			r.auditCursor = f.UpdatedAt
		}
		if _, err := r.blobs.Head(ctx, f.BlobKey); errors.Is(err, blobstore.ErrNotFound) {
			if err := r.metadata.UpdateFileStatus(ctx, f.ID, model.FileStatusReady, model.FileStatusMissing, "blob absent from store"); err != nil {
				logger.WarnCtx(ctx, "failed to mark file missing", logger.FileID(f.ID), logger.Err(err))
				continue
			}
			logger.WarnCtx(ctx, "file marked missing: blob absent", logger.FileID(f.ID), logger.Key(f.BlobKey))
			fixed++
		}
	}
	// Wrap the cursor once a full cycle has passed through the table.
	if len(files) < r.cfg.MissingAuditBatchSize {
		r.auditCursor = time.Time{}
	}

	logger.InfoCtx(ctx, "pass complete: corrupted records", logger.PassName("corrupted_records"), logger.RecordsFixed(int64(fixed)))
	return fixed, nil
}

// passBadStatusAging (c): files stuck in pending well past any plausible
// upload duration (older than BadStatusMaxAge) are marked failed so they stop
// blocking dedup lookups and retries indefinitely. Only pending records are
// selected; records already in failed or missing are not touched or deleted
// by this pass.
func (r *Reconciler) passBadStatusAging(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.cfg.BadStatusMaxAge)
	stale, err := r.metadata.ListByStatusOlderThan(ctx, model.FileStatusPending, cutoff, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list aged pending files: %w", err)
	}

	fixed := 0
	for _, f := range stale {
		if err := r.metadata.UpdateFileStatus(ctx, f.ID, model.FileStatusPending, model.FileStatusFailed, "stuck in pending past max age"); err != nil {
			logger.WarnCtx(ctx, "failed to age out stuck upload", logger.FileID(f.ID), logger.Err(err))
			continue
		}
		fixed++
	}

	logger.InfoCtx(ctx, "pass complete: bad-status aging", logger.PassName("bad_status_aging"), logger.RecordsFixed(int64(fixed)))
	return fixed, nil
}

// passOrphanedTempFiles (d): the metadata store never records temp
// uploads, so orphan detection walks the blob store's temp prefix directly
// and deletes any key older than TempFileMaxAge — a crashed upload's only
// trace.
func (r *Reconciler) passOrphanedTempFiles(ctx context.Context) (int, error) {
	keys, err := r.blobs.List(ctx, r.cfg.TempKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list temp keys: %w", err)
	}

	cutoff := time.Now().Add(-r.cfg.TempFileMaxAge)
	var stale []string
	for _, key := range keys {
		info, err := r.blobs.Head(ctx, key)
		if err != nil {
			continue
		}
		if info.LastModified.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		logger.InfoCtx(ctx, "pass complete: orphaned temp files", logger.PassName("orphaned_temp_files"), logger.RecordsFixed(0))
		return 0, nil
	}

	result, err := r.blobs.DeleteBatch(ctx, stale)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned temp files: %w", err)
	}

	logger.InfoCtx(ctx, "pass complete: orphaned temp files",
		logger.PassName("orphaned_temp_files"), logger.BlobsDeleted(int64(len(result.Deleted))))
	return len(result.Deleted), nil
}

// passOldThumbnails (e): derived assets past OldThumbnailMaxAge are evicted
// unconditionally; they are cheap to regenerate and this bounds storage for
// thumbnail variants that are no longer requested.
func (r *Reconciler) passOldThumbnails(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.cfg.OldThumbnailMaxAge)
	old, err := r.metadata.ListThumbnailsOlderThan(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list old thumbnails: %w", err)
	}

	fixed := 0
	for _, t := range old {
		if t.BlobKey != "" {
			if err := r.blobs.Delete(ctx, t.BlobKey); err != nil {
				logger.WarnCtx(ctx, "failed to delete old thumbnail blob", logger.ThumbnailID(t.ID), logger.Err(err))
				continue
			}
		}
		if err := r.metadata.HardDeleteThumbnail(ctx, t.ID); err != nil {
			logger.WarnCtx(ctx, "failed to purge old thumbnail record", logger.ThumbnailID(t.ID), logger.Err(err))
			continue
		}
		fixed++
	}

	logger.InfoCtx(ctx, "pass complete: old thumbnails", logger.PassName("old_thumbnails"), logger.RecordsFixed(int64(fixed)))
	return fixed, nil
}
