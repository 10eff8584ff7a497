// Package metrics tracks Prometheus metrics across the six lifecycle
// pipelines: Upload, Optimization, Soft-Delete & GC, Cleanup Reconciler,
// Problem Detector, and URL Download.
//
// All metrics use the "mediastore_" prefix. Methods handle a nil receiver
// gracefully, so a nil *Metrics acts as a no-op when metrics collection is
// disabled, following the same pattern as the pack's ACL/GSS metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates every counter/histogram/gauge this service exports.
type Metrics struct {
	UploadsTotal         *prometheus.CounterVec // labels: result=[ready,deduplicated,rejected,failed]
	UploadDuration       prometheus.Histogram
	UploadBytesTotal     prometheus.Counter

	OptimizationsTotal   *prometheus.CounterVec // labels: result=[ready,failed,skipped]
	OptimizationDuration prometheus.Histogram

	GCBlobsDeletedTotal  prometheus.Counter
	GCScannedTotal       prometheus.Counter
	GCDuration           prometheus.Histogram

	ReconcilerPassDuration *prometheus.HistogramVec // labels: pass
	ReconcilerRecordsFixed *prometheus.CounterVec   // labels: pass

	ProblemsFoundTotal *prometheus.CounterVec // labels: code

	DownloadsTotal   *prometheus.CounterVec // labels: result=[ok,blocked,timeout,too_large]
	DownloadDuration prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New creates and registers every metric exactly once (sync.Once), even if
// called multiple times. If registerer is nil, prometheus.DefaultRegisterer
// is used.
func New(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediastore_uploads_total",
				Help: "Total uploads processed by the upload pipeline, by result",
			}, []string{"result"}),
			UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "mediastore_upload_duration_seconds",
				Help:    "Time to ingest an upload end to end",
				Buckets: prometheus.DefBuckets,
			}),
			UploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "mediastore_upload_bytes_total",
				Help: "Total bytes accepted by the upload pipeline",
			}),

			OptimizationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediastore_optimizations_total",
				Help: "Total files processed by the optimization engine, by result",
			}, []string{"result"}),
			OptimizationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "mediastore_optimization_duration_seconds",
				Help:    "Time to generate all thumbnail variants for a file",
				Buckets: prometheus.DefBuckets,
			}),

			GCBlobsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "mediastore_gc_blobs_deleted_total",
				Help: "Total blobs physically deleted by the GC sweep",
			}),
			GCScannedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "mediastore_gc_scanned_total",
				Help: "Total soft-deleted records scanned by the GC sweep",
			}),
			GCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "mediastore_gc_sweep_duration_seconds",
				Help:    "Time to complete one GC sweep",
				Buckets: prometheus.DefBuckets,
			}),

			ReconcilerPassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "mediastore_reconciler_pass_duration_seconds",
				Help:    "Time to complete one reconciler pass",
				Buckets: prometheus.DefBuckets,
			}, []string{"pass"}),
			ReconcilerRecordsFixed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediastore_reconciler_records_fixed_total",
				Help: "Total records repaired by the reconciler, by pass",
			}, []string{"pass"}),

			ProblemsFoundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediastore_problems_found_total",
				Help: "Total invariant violations found by the problem detector, by code",
			}, []string{"code"}),

			DownloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mediastore_url_downloads_total",
				Help: "Total URL downloads attempted, by result",
			}, []string{"result"}),
			DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "mediastore_url_download_duration_seconds",
				Help:    "Time to complete a URL download",
				Buckets: prometheus.DefBuckets,
			}),
		}

		registerer.MustRegister(
			m.UploadsTotal, m.UploadDuration, m.UploadBytesTotal,
			m.OptimizationsTotal, m.OptimizationDuration,
			m.GCBlobsDeletedTotal, m.GCScannedTotal, m.GCDuration,
			m.ReconcilerPassDuration, m.ReconcilerRecordsFixed,
			m.ProblemsFoundTotal,
			m.DownloadsTotal, m.DownloadDuration,
		)

		metricsInstance = m
	})

	return metricsInstance
}

func (m *Metrics) ObserveUpload(result string, duration time.Duration, bytes int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(result).Inc()
	m.UploadDuration.Observe(duration.Seconds())
	if bytes > 0 {
		m.UploadBytesTotal.Add(float64(bytes))
	}
}

func (m *Metrics) ObserveOptimization(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OptimizationsTotal.WithLabelValues(result).Inc()
	m.OptimizationDuration.Observe(duration.Seconds())
}

func (m *Metrics) ObserveGCSweep(scanned, deleted int, duration time.Duration) {
	if m == nil {
		return
	}
	m.GCScannedTotal.Add(float64(scanned))
	m.GCBlobsDeletedTotal.Add(float64(deleted))
	m.GCDuration.Observe(duration.Seconds())
}

func (m *Metrics) ObserveReconcilerPass(pass string, fixed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ReconcilerPassDuration.WithLabelValues(pass).Observe(duration.Seconds())
	m.ReconcilerRecordsFixed.WithLabelValues(pass).Add(float64(fixed))
}

func (m *Metrics) ObserveProblem(code string) {
	if m == nil {
		return
	}
	m.ProblemsFoundTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveDownload(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(result).Inc()
	m.DownloadDuration.Observe(duration.Seconds())
}
