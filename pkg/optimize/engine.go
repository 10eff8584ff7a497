// Package optimize implements the Optimization Engine (spec §4.2): a
// worker pool that polls for files pending optimization, calls the image
// processor sidecar to produce each configured thumbnail variant, and
// advances each File's optimization status through pending -> processing ->
// ready|failed (each Thumbnail row is created in processing and then moved
// to ready|failed) using compare-and-set updates as the sole concurrency-control mechanism
// (no in-process per-file locking, matching the teacher's row-count-as-lock
// idiom used throughout its metadata layer).
package optimize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/imageproc"
	"github.com/bozonx/mediastore/pkg/metadata"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/storeerrors"
)

// Variant names a (width, height, mimeType) thumbnail transform.
type Variant struct {
	Name     string
	Width    int
	Height   int
	MimeType string
}

// Config controls the worker pool and the set of variants to produce.
type Config struct {
	Workers      int
	Variants     []Variant
	PollInterval time.Duration
	MaxAttempts  int
}

// Engine runs the Optimization Engine's worker pool.
type Engine struct {
	metadata  metadata.Store
	processor *imageproc.Client
	cfg       Config

	eligibleMimeTypes map[string]bool
}

// New constructs an Engine. eligibleMimeTypes restricts which originals are
// optimized at all; others are marked skipped immediately (spec §4.2 edge case).
func New(meta metadata.Store, processor *imageproc.Client, cfg Config, eligibleMimeTypes map[string]bool) *Engine {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return &Engine{metadata: meta, processor: processor, cfg: cfg, eligibleMimeTypes: eligibleMimeTypes}
}

// Run starts cfg.Workers goroutines that poll for pending work until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.workerLoop(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (e *Engine) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.processOneBatch(ctx); err != nil {
				logger.WarnCtx(ctx, "optimization worker batch failed", logger.Operation("optimize"), logger.Err(err))
			}
		}
	}
}

// processOneBatch pulls a page of files sitting at status=ready with no
// optimization activity yet, and drives each through ProcessFile. Ready
// files whose OptimizationStatus has already left pending are skipped by
// ProcessFile's own CAS claim, so concurrent workers never duplicate work.
func (e *Engine) processOneBatch(ctx context.Context) error {
	files, err := e.metadata.ListByStatusOlderThan(ctx, model.FileStatusReady, time.Now(), e.batchSize())
	if err != nil {
		return fmt.Errorf("failed to list ready files: %w", err)
	}
	for _, f := range files {
		if f.OptimizationStatus != model.OptimizationPending {
			continue
		}
		if err := e.ProcessFile(ctx, f); err != nil {
			logger.ErrorCtx(ctx, "optimization failed", logger.FileID(f.ID), logger.Err(err))
		}
	}
	return nil
}

func (e *Engine) batchSize() int {
	if e.cfg.Workers <= 0 {
		return 1
	}
	return e.cfg.Workers
}

// ProcessFile drives one File through its full optimization state machine.
// It is also the entry point the registry can wire directly into a
// post-upload dispatch hook, bypassing the poll loop's latency.
func (e *Engine) ProcessFile(ctx context.Context, f *model.File) error {
	if !e.eligibleMimeTypes[f.MimeType] {
		return e.metadata.UpdateFileOptimizationStatus(ctx, f.ID, model.OptimizationPending, model.OptimizationSkipped, "mime type not eligible for optimization")
	}

	if err := e.metadata.UpdateFileOptimizationStatus(ctx, f.ID, model.OptimizationPending, model.OptimizationProcessing, ""); err != nil {
		if storeerrors.IsConflictError(err) {
			// Another worker already claimed this file; not an error.
			return nil
		}
		return err
	}

	var firstErr error
	for _, v := range e.cfg.Variants {
		if err := e.generateVariant(ctx, f, v); err != nil {
			logger.ErrorCtx(ctx, "thumbnail variant failed", logger.FileID(f.ID), logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		if err := e.metadata.UpdateFileOptimizationStatus(ctx, f.ID, model.OptimizationProcessing, model.OptimizationFailed, firstErr.Error()); err != nil {
			return err
		}
		return firstErr
	}
	return e.metadata.UpdateFileOptimizationStatus(ctx, f.ID, model.OptimizationProcessing, model.OptimizationReady, "")
}

func (e *Engine) generateVariant(ctx context.Context, f *model.File, v Variant) error {
	paramsHash := hashParams(v)

	if existing, err := e.metadata.GetThumbnail(ctx, f.ID, paramsHash); err == nil && existing != nil {
		return nil // already generated, e.g. a retried batch
	}

	t := &model.Thumbnail{
		ID:                 uuid.NewString(),
		FileID:             f.ID,
		ParamsHash:         paramsHash,
		Width:              v.Width,
		Height:             v.Height,
		MimeType:           v.MimeType,
		OptimizationStatus: model.OptimizationProcessing,
	}
	if err := e.metadata.CreateThumbnail(ctx, t); err != nil {
		return fmt.Errorf("failed to create thumbnail record: %w", err)
	}

	destKey := fmt.Sprintf("thumbnails/%s/%s", f.ID, paramsHash)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		resp, err := e.processor.Process(ctx, imageproc.ProcessRequest{
			SourceKey: f.BlobKey,
			DestKey:   destKey,
			Width:     v.Width,
			Height:    v.Height,
			MimeType:  v.MimeType,
		})
		if err == nil {
			return e.metadata.UpdateThumbnailStatus(ctx, t.ID, model.OptimizationProcessing, model.OptimizationReady,
				destKey, resp.Width, resp.Height, resp.SizeBytes, "")
		}
		lastErr = err
		logger.WarnCtx(ctx, "thumbnail transform attempt failed",
			logger.ThumbnailID(t.ID), logger.Attempt(attempt), logger.MaxRetries(e.cfg.MaxAttempts), logger.Err(err))
	}

	_ = e.metadata.UpdateThumbnailStatus(ctx, t.ID, model.OptimizationProcessing, model.OptimizationFailed, "", 0, 0, 0, lastErr.Error())
	return lastErr
}

func hashParams(v Variant) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", v.Name, v.Width, v.Height, v.MimeType)))
	return hex.EncodeToString(sum[:])
}
