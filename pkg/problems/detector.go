// Package problems implements the Problem Detector (spec §4.5): a
// read-only audit that classifies invariant violations across the
// metadata and blob stores into an operator-facing report, without
// repairing anything itself (repair is the Cleanup Reconciler's job; this
// package only observes and names what it finds).
package problems

import (
	"context"
	"fmt"
	"time"

	"github.com/bozonx/mediastore/pkg/metadata"
	"github.com/bozonx/mediastore/pkg/model"
)

// Problem codes. Stable strings so operator tooling/alerts can match on them.
const (
	CodeMissingBlob       = "missing_blob"        // status=missing: blob absent under a ready record
	CodeStalePending      = "stale_pending"       // pending past a plausible upload duration
	CodeStuckOptimization = "stuck_optimization"  // optimizationStatus=processing for too long, never resolved
	CodeStaleSoftDelete   = "stale_soft_delete"    // soft-deleted well past grace period, GC hasn't caught up
)

// Thresholds controls how aggressively each check flags a record.
type Thresholds struct {
	StalePendingAge      time.Duration
	StuckOptimizationAge time.Duration
	StaleSoftDeleteAge   time.Duration
	BatchSize            int
}

// Detector scans the metadata store for invariant violations.
type Detector struct {
	metadata metadata.Store
	cfg      Thresholds
}

// New constructs a Detector.
func New(meta metadata.Store, cfg Thresholds) *Detector {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 200
	}
	return &Detector{metadata: meta, cfg: cfg}
}

// Report aggregates a full detection pass plus per-status record counts.
type Report struct {
	Problems    []model.Problem
	StatusCounts map[model.FileStatus]int64
}

// Scan runs every check and returns a combined Report. Each check failure
// is independent; one check erroring doesn't prevent the others from running.
func (d *Detector) Scan(ctx context.Context) (*Report, error) {
	report := &Report{}

	counts, err := d.metadata.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	report.StatusCounts = counts

	checks := []func(context.Context) ([]model.Problem, error){
		d.checkMissingBlobs,
		d.checkStalePending,
		d.checkStuckOptimizations,
		d.checkStaleSoftDeletes,
	}
	for _, check := range checks {
		found, err := check(ctx)
		if err != nil {
			report.Problems = append(report.Problems, model.Problem{
				Code:    "check_failed",
				Message: err.Error(),
			})
			continue
		}
		report.Problems = append(report.Problems, found...)
	}

	return report, nil
}

// checkMissingBlobs flags every File the reconciler has already demoted to
// FileStatusMissing — a confirmed blob/record mismatch, not just a
// suspicion.
func (d *Detector) checkMissingBlobs(ctx context.Context) ([]model.Problem, error) {
	files, err := d.metadata.ListByStatusOlderThan(ctx, model.FileStatusMissing, time.Now(), d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing files: %w", err)
	}
	problems := make([]model.Problem, 0, len(files))
	for _, f := range files {
		problems = append(problems, model.Problem{
			Code:    CodeMissingBlob,
			Message: fmt.Sprintf("file %s is status=missing: its blob %q is absent from the store", f.ID, f.BlobKey),
			FileID:  f.ID,
		})
	}
	return problems, nil
}

// checkStalePending flags uploads that have sat in pending longer than any
// real upload should take — the reconciler's aging pass will eventually
// fail these out, but a stale-pending problem surfaces the condition
// before that happens, e.g. for alerting.
func (d *Detector) checkStalePending(ctx context.Context) ([]model.Problem, error) {
	cutoff := time.Now().Add(-d.cfg.StalePendingAge)
	files, err := d.metadata.ListByStatusOlderThan(ctx, model.FileStatusPending, cutoff, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending files: %w", err)
	}
	problems := make([]model.Problem, 0, len(files))
	for _, f := range files {
		problems = append(problems, model.Problem{
			Code:    CodeStalePending,
			Message: fmt.Sprintf("file %s has been pending since %s with no promotion to ready", f.ID, f.UpdatedAt.Format(time.RFC3339)),
			FileID:  f.ID,
		})
	}
	return problems, nil
}

// checkStuckOptimizations flags thumbnail rows that were claimed
// (optimizationStatus=processing) and never resolved — a crashed worker
// that never got to CAS the row back to ready or failed.
func (d *Detector) checkStuckOptimizations(ctx context.Context) ([]model.Problem, error) {
	cutoff := time.Now().Add(-d.cfg.StuckOptimizationAge)
	thumbs, err := d.metadata.ListThumbnailsOlderThan(ctx, cutoff, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list old thumbnails: %w", err)
	}
	problems := make([]model.Problem, 0)
	for _, t := range thumbs {
		if t.OptimizationStatus != model.OptimizationProcessing {
			continue
		}
		problems = append(problems, model.Problem{
			Code:    CodeStuckOptimization,
			Message: fmt.Sprintf("thumbnail %s for file %s has been processing since %s with no resolution", t.ID, t.FileID, t.UpdatedAt.Format(time.RFC3339)),
			FileID:  t.FileID,
		})
	}
	return problems, nil
}

// checkStaleSoftDeletes flags soft-deleted files well past the GC grace
// period, which should never accumulate under a healthy reconciler
// schedule — a growing count here means the reconciler cron has stopped
// running or GC is failing silently.
func (d *Detector) checkStaleSoftDeletes(ctx context.Context) ([]model.Problem, error) {
	cutoff := time.Now().Add(-d.cfg.StaleSoftDeleteAge)
	files, err := d.metadata.ListSoftDeletedBefore(ctx, cutoff, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale soft-deletes: %w", err)
	}
	problems := make([]model.Problem, 0, len(files))
	for _, f := range files {
		problems = append(problems, model.Problem{
			Code:    CodeStaleSoftDelete,
			Message: fmt.Sprintf("file %s was soft-deleted and is still present well past the GC grace period", f.ID),
			FileID:  f.ID,
		})
	}
	return problems, nil
}
