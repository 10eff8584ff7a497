package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for the pipeline spans this service emits.
const (
	AttrOperation          = "pipeline.operation" // upload, optimize, reconcile, detect, fetch
	AttrFileID             = "file.id"
	AttrChecksum           = "file.checksum"
	AttrMimeType           = "file.mime_type"
	AttrSizeBytes          = "file.size_bytes"
	AttrStatus             = "file.status"
	AttrOptimizationStatus = "file.optimization_status"
	AttrThumbnailID        = "thumbnail.id"
	AttrParamsHash         = "thumbnail.params_hash"
	AttrSourceURL          = "download.source_url"

	AttrCacheHit  = "cache.hit"
	AttrStoreName = "store.name"
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"

	AttrPassName     = "reconciler.pass"
	AttrRecordsTotal = "reconciler.records_total"
	AttrRecordsFixed = "reconciler.records_fixed"
	AttrBlobsDeleted = "reconciler.blobs_deleted"
)

// Span names for the pipeline operations this service runs.
const (
	SpanUpload          = "upload.ingest"
	SpanOptimize        = "optimize.process_file"
	SpanOptimizeVariant = "optimize.generate_variant"
	SpanSoftDelete      = "softdelete.delete"
	SpanGCSweep         = "softdelete.collect_garbage"
	SpanReconcilerCycle = "reconciler.run_once"
	SpanProblemScan     = "problems.scan"
	SpanURLFetch        = "urlfetch.fetch"

	SpanContentRead  = "blobstore.read"
	SpanContentWrite = "blobstore.write"
	SpanContentStat  = "blobstore.stat"
	SpanMetaLookup   = "metadata.lookup"
	SpanMetaUpdate   = "metadata.update"
	SpanMetaCreate   = "metadata.create"
	SpanMetaDelete   = "metadata.delete"
)

func Operation(op string) attribute.KeyValue { return attribute.String(AttrOperation, op) }
func FileID(id string) attribute.KeyValue    { return attribute.String(AttrFileID, id) }
func Checksum(c string) attribute.KeyValue   { return attribute.String(AttrChecksum, c) }
func MimeType(m string) attribute.KeyValue   { return attribute.String(AttrMimeType, m) }
func SizeBytes(n int64) attribute.KeyValue   { return attribute.Int64(AttrSizeBytes, n) }
func Status(s string) attribute.KeyValue     { return attribute.String(AttrStatus, s) }
func OptimizationStatus(s string) attribute.KeyValue {
	return attribute.String(AttrOptimizationStatus, s)
}
func ThumbnailID(id string) attribute.KeyValue { return attribute.String(AttrThumbnailID, id) }
func ParamsHash(h string) attribute.KeyValue   { return attribute.String(AttrParamsHash, h) }
func SourceURL(u string) attribute.KeyValue    { return attribute.String(AttrSourceURL, u) }

func CacheHit(hit bool) attribute.KeyValue     { return attribute.Bool(AttrCacheHit, hit) }
func StoreName(name string) attribute.KeyValue { return attribute.String(AttrStoreName, name) }
func StoreType(t string) attribute.KeyValue    { return attribute.String(AttrStoreType, t) }
func Bucket(name string) attribute.KeyValue    { return attribute.String(AttrBucket, name) }
func StorageKey(key string) attribute.KeyValue { return attribute.String(AttrKey, key) }
func Region(region string) attribute.KeyValue  { return attribute.String(AttrRegion, region) }

func PassName(name string) attribute.KeyValue { return attribute.String(AttrPassName, name) }
func RecordsTotal(n int64) attribute.KeyValue { return attribute.Int64(AttrRecordsTotal, n) }
func RecordsFixed(n int64) attribute.KeyValue { return attribute.Int64(AttrRecordsFixed, n) }
func BlobsDeleted(n int64) attribute.KeyValue { return attribute.Int64(AttrBlobsDeleted, n) }

// StartPipelineSpan starts a span for one of the six lifecycle pipelines,
// tagging it with the operation name up front.
func StartPipelineSpan(ctx context.Context, spanName, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Operation(operation)}, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartContentSpan starts a span for a blob store operation.
func StartContentSpan(ctx context.Context, operation string, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{StorageKey(key)}, attrs...)
	return StartSpan(ctx, "blobstore."+operation, trace.WithAttributes(allAttrs...))
}

// StartMetadataSpan starts a span for a metadata store operation.
func StartMetadataSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "metadata."+operation, trace.WithAttributes(attrs...))
}
