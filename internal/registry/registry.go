// Package registry is the composition root: it wires configuration into
// concrete stores and pipelines and hands back a single Registry the CLI
// entrypoint can start and stop.
package registry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bozonx/mediastore/internal/config"
	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/pkg/api"
	"github.com/bozonx/mediastore/pkg/blobstore"
	"github.com/bozonx/mediastore/pkg/blobstore/s3"
	"github.com/bozonx/mediastore/pkg/imageproc"
	"github.com/bozonx/mediastore/pkg/metadata"
	"github.com/bozonx/mediastore/pkg/metadata/dedupcache"
	"github.com/bozonx/mediastore/pkg/metadata/gorm"
	"github.com/bozonx/mediastore/pkg/metrics"
	"github.com/bozonx/mediastore/pkg/optimize"
	"github.com/bozonx/mediastore/pkg/problems"
	"github.com/bozonx/mediastore/pkg/reconciler"
	"github.com/bozonx/mediastore/pkg/softdelete"
	"github.com/bozonx/mediastore/pkg/upload"
	"github.com/bozonx/mediastore/pkg/urlfetch"
)

// Registry holds every component built from config, already wired together.
type Registry struct {
	Config     *config.Config
	Metadata   metadata.Store
	Blobs      blobstore.Store
	Dedup      *dedupcache.Cache
	Processor  *imageproc.Client
	Upload     *upload.Pipeline
	Optimize   *optimize.Engine
	SoftDelete *softdelete.Manager
	Reconciler *reconciler.Reconciler
	Detector   *problems.Detector
	Fetcher    *urlfetch.Fetcher
	Metrics    *metrics.Metrics
	API        *api.Server

	metricsServer *http.Server
}

// New builds every component in dependency order: metadata store, blob
// store, dedup cache, image processor client, then the six pipelines, then
// the metrics registry and API server on top.
func New(ctx context.Context, cfg *config.Config) (*Registry, error) {
	reg := &Registry{Config: cfg}

	metaStore, err := gorm.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	reg.Metadata = metaStore

	blobs, err := buildBlobStore(ctx, cfg.BlobStore)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	reg.Blobs = blobs

	if cfg.DedupCache.Enabled {
		dedup, err := dedupcache.Open(cfg.DedupCache.Path, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open dedup cache: %w", err)
		}
		reg.Dedup = dedup
	}

	reg.Processor = imageproc.New(cfg.Optimization.ImageProcessor.Address, cfg.Optimization.ImageProcessor.Timeout)

	reg.Upload = upload.New(reg.Blobs, reg.Metadata, reg.Dedup, upload.Config{
		MaxFileSize:      int64(cfg.Upload.MaxFileSize),
		AllowedMimeTypes: toSet(cfg.Upload.AllowedMimeTypes),
		TempKeyPrefix:    cfg.Upload.TempKeyPrefix,
	})

	variants := make([]optimize.Variant, 0, len(cfg.Optimization.Variants))
	eligible := make(map[string]bool)
	for _, v := range cfg.Optimization.Variants {
		variants = append(variants, optimize.Variant{Name: v.Name, Width: v.Width, Height: v.Height, MimeType: v.MimeType})
	}
	for _, mt := range cfg.Upload.AllowedMimeTypes {
		eligible[mt] = isImageMimeType(mt)
	}
	reg.Optimize = optimize.New(reg.Metadata, reg.Processor, optimize.Config{
		Workers:      cfg.Optimization.Workers,
		Variants:     variants,
		PollInterval: cfg.Optimization.PollInterval,
		MaxAttempts:  cfg.Optimization.MaxAttempts,
	}, eligible)

	reg.SoftDelete = softdelete.New(reg.Blobs, reg.Metadata, reg.Dedup)

	reg.Reconciler = reconciler.New(reg.Blobs, reg.Metadata, reg.SoftDelete, reconciler.Config{
		Schedule:              cfg.Cleanup.Schedule,
		SoftDeleteGracePeriod: cfg.Cleanup.SoftDeleteGracePeriod,
		TempFileMaxAge:        cfg.Cleanup.TempFileMaxAge,
		BadStatusMaxAge:       cfg.Cleanup.BadStatusMaxAge,
		OldThumbnailMaxAge:    cfg.Cleanup.OldThumbnailMaxAge,
		BatchSize:             cfg.Cleanup.BatchSize,
		MissingAuditBatchSize: cfg.Cleanup.MissingAuditBatchSize,
		TempKeyPrefix:         cfg.Upload.TempKeyPrefix,
	})

	reg.Detector = problems.New(reg.Metadata, problems.Thresholds{
		StalePendingAge:      cfg.Cleanup.BadStatusMaxAge,
		StuckOptimizationAge: cfg.Cleanup.BadStatusMaxAge,
		StaleSoftDeleteAge:   cfg.Cleanup.SoftDeleteGracePeriod,
		BatchSize:            cfg.Cleanup.BatchSize,
	})

	fetcher, err := urlfetch.New(urlfetch.Config{
		MaxBytes:       int64(cfg.URLFetch.MaxBytes),
		Timeout:        cfg.URLFetch.Timeout,
		MaxRedirects:   cfg.URLFetch.MaxRedirects,
		AllowedSchemes: cfg.URLFetch.AllowedSchemes,
		DeniedCIDRs:    cfg.URLFetch.DeniedCIDRs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize URL fetcher: %w", err)
	}
	reg.Fetcher = fetcher

	if cfg.Metrics.Enabled {
		reg.Metrics = metrics.New(nil)

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		reg.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
	}

	reg.API = api.NewServer(cfg.API, &api.Handlers{
		Upload:     reg.Upload,
		Optimize:   reg.Optimize,
		SoftDelete: reg.SoftDelete,
		Reconciler: reg.Reconciler,
		Detector:   reg.Detector,
		Fetcher:    reg.Fetcher,
		Metadata:   reg.Metadata,
		Metrics:    reg.Metrics,
	})

	return reg, nil
}

func buildBlobStore(ctx context.Context, cfg config.BlobStoreConfig) (blobstore.Store, error) {
	client, err := s3.NewClientFromConfig(ctx, cfg.Endpoint, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.UsePathStyle)
	if err != nil {
		return nil, err
	}
	return s3.New(ctx, s3.Config{
		Client:     client,
		Bucket:     cfg.Bucket,
		KeyPrefix:  cfg.KeyPrefix,
		MaxRetries: cfg.MaxRetries,
	})
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func isImageMimeType(mimeType string) bool {
	return len(mimeType) >= 6 && mimeType[:6] == "image/"
}

// Start runs the Optimization Engine and Cleanup Reconciler in the
// background and blocks on the API server until ctx is canceled.
func (r *Registry) Start(ctx context.Context) error {
	go r.Optimize.Run(ctx)

	if err := r.Reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}
	defer r.Reconciler.Stop()

	if r.metricsServer != nil {
		go func() {
			logger.Info("metrics server listening", logger.Key(r.metricsServer.Addr))
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", logger.Err(err))
			}
		}()
		defer func() { _ = r.metricsServer.Shutdown(context.Background()) }()
	}

	logger.Info("registry started",
		logger.Key(r.Config.API.Address))

	return r.API.Start(ctx)
}

// Close releases every resource the registry opened.
func (r *Registry) Close() error {
	if r.Dedup != nil {
		if err := r.Dedup.Close(); err != nil {
			logger.Error("failed to close dedup cache", logger.Err(err))
		}
	}
	return r.Metadata.Close()
}
