// Package upload implements the Upload Pipeline (spec §4.1): a two-phase
// ingest that streams the payload to a temp blob key while hashing it,
// then either discards the upload (already deduplicated, too large, wrong
// mime type) or promotes the temp key to its final content-addressed key
// via a server-side copy.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/blobstore"
	"github.com/bozonx/mediastore/pkg/metadata"
	"github.com/bozonx/mediastore/pkg/metadata/dedupcache"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/storeerrors"
)

// Config controls the pipeline's size/mime-type policy.
type Config struct {
	MaxFileSize      int64
	AllowedMimeTypes map[string]bool
	TempKeyPrefix    string
}

// Pipeline implements the Upload Pipeline.
type Pipeline struct {
	blobs    blobstore.Store
	metadata metadata.Store
	dedup    *dedupcache.Cache // optional; nil disables the local lookup cache
	cfg      Config
}

// New constructs an upload Pipeline.
func New(blobs blobstore.Store, meta metadata.Store, dedup *dedupcache.Cache, cfg Config) *Pipeline {
	return &Pipeline{blobs: blobs, metadata: meta, dedup: dedup, cfg: cfg}
}

// Result describes the outcome of an Ingest call.
type Result struct {
	File       *model.File
	Deduplicated bool // true if an existing ready File already owned this content
}

// Ingest streams r (declared as originalFilename/mimeType/sizeHint) into
// the blob store and metadata store, deduplicating on (checksum, mimeType).
//
// Flow (spec §4.1):
//  1. Validate mime type and size ceiling up front (sizeHint may be
//     approximate for chunked transfers; the real limit is enforced by
//     capping the stream read).
//  2. Stream-hash the payload to a temp blob key.
//  3. If a ready File with the same (checksum, mimeType) already exists,
//     discard the temp blob and return it deduplicated.
//  4. Otherwise create a pending File record, server-side copy the temp
//     key to the final content-addressed key, and transition to ready.
//  5. On any failure after the temp write, the temp blob is cleaned up
//     immediately — it isn't left for the reconciler's orphan pass, which
//     exists for crash recovery, not the common-case error path.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, originalFilename, mimeType string, sizeHint int64) (*Result, error) {
	if len(p.cfg.AllowedMimeTypes) > 0 && !p.cfg.AllowedMimeTypes[mimeType] {
		return nil, storeerrors.NewUnsupportedMimeTypeError(mimeType)
	}
	if sizeHint > 0 && sizeHint > p.cfg.MaxFileSize {
		return nil, storeerrors.NewFileTooLargeError(p.cfg.MaxFileSize)
	}

	tempKey := p.cfg.TempKeyPrefix + uuid.NewString()
	limited := io.LimitReader(r, p.cfg.MaxFileSize+1)
	hasher := sha256.New()
	tee := io.TeeReader(limited, hasher)

	counting := &countingReader{r: tee}
	if err := p.blobs.Put(ctx, tempKey, counting, sizeHint); err != nil {
		return nil, fmt.Errorf("failed to write temp blob: %w", err)
	}

	if counting.n > p.cfg.MaxFileSize {
		_ = p.blobs.Delete(ctx, tempKey)
		return nil, storeerrors.NewFileTooLargeError(p.cfg.MaxFileSize)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	logger.InfoCtx(ctx, "upload streamed to temp key",
		logger.Key(tempKey), logger.Checksum(checksum), logger.MimeType(mimeType), logger.SizeBytes(counting.n))

	if existing, err := p.dedupLookup(ctx, checksum, mimeType); err != nil {
		_ = p.blobs.Delete(ctx, tempKey)
		return nil, err
	} else if existing != nil {
		_ = p.blobs.Delete(ctx, tempKey)
		logger.InfoCtx(ctx, "upload deduplicated", logger.FileID(existing.ID), logger.Checksum(checksum))
		return &Result{File: existing, Deduplicated: true}, nil
	}

	f := &model.File{
		ID:               uuid.NewString(),
		Checksum:         checksum,
		MimeType:         mimeType,
		SizeBytes:        counting.n,
		OriginalFilename: originalFilename,
		BlobKey:          finalBlobKey(checksum, mimeType),
		Status:           model.FileStatusPending,
		OptimizationStatus: model.OptimizationPending,
	}

	if err := p.metadata.CreateFile(ctx, f); err != nil {
		_ = p.blobs.Delete(ctx, tempKey)
		if storeerrors.IsAlreadyExistsError(err) {
			// Lost a race against a concurrent uploader of identical content;
			// defer to whichever one finishes promotion first.
			if existing, lookupErr := p.metadata.FindReadyByChecksum(ctx, checksum, mimeType); lookupErr == nil && existing != nil {
				return &Result{File: existing, Deduplicated: true}, nil
			}
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	if err := p.blobs.Copy(ctx, tempKey, f.BlobKey); err != nil {
		_ = p.blobs.Delete(ctx, tempKey)
		_ = p.metadata.UpdateFileStatus(ctx, f.ID, model.FileStatusPending, model.FileStatusFailed, err.Error())
		return nil, fmt.Errorf("failed to promote blob: %w", err)
	}
	_ = p.blobs.Delete(ctx, tempKey)

	if err := p.metadata.UpdateFileStatus(ctx, f.ID, model.FileStatusPending, model.FileStatusReady, ""); err != nil {
		return nil, fmt.Errorf("failed to mark file ready: %w", err)
	}
	f.Status = model.FileStatusReady

	if p.dedup != nil {
		_ = p.dedup.Store(checksum, mimeType, f.ID)
	}

	logger.InfoCtx(ctx, "upload promoted to final key", logger.FileID(f.ID), logger.Key(f.BlobKey))

	return &Result{File: f}, nil
}

func (p *Pipeline) dedupLookup(ctx context.Context, checksum, mimeType string) (*model.File, error) {
	if p.dedup != nil {
		if fileID, ok := p.dedup.Lookup(ctx, checksum, mimeType); ok {
			f, err := p.metadata.GetFile(ctx, fileID)
			if err == nil && f.IsReady() {
				return f, nil
			}
			// Stale cache entry (file was deleted/GC'd since caching); fall through to DB.
		}
	}

	existing, err := p.metadata.FindReadyByChecksum(ctx, checksum, mimeType)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}
	return existing, nil
}

// finalBlobKey derives the content-addressed key for a (checksum, mimeType) pair.
func finalBlobKey(checksum, mimeType string) string {
	return fmt.Sprintf("originals/%s/%s", sanitizeMimeType(mimeType), checksum)
}

func sanitizeMimeType(mimeType string) string {
	return strings.ReplaceAll(mimeType, "/", "_")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
