package logger

import "log/slog"

// Standard field keys for structured logging across the file lifecycle engine.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Request / Operation
	// ========================================================================
	KeyRequestID = "request_id"
	KeyOperation = "operation" // upload, optimize, reconcile, detect, fetch
	KeyClientIP  = "client_ip"

	// ========================================================================
	// File & Media Record
	// ========================================================================
	KeyFileID             = "file_id"
	KeyThumbnailID        = "thumbnail_id"
	KeyChecksum           = "checksum"
	KeyMimeType           = "mime_type"
	KeySizeBytes          = "size_bytes"
	KeyStatus             = "status"
	KeyOptimizationStatus = "optimization_status"
	KeyParamsHash         = "params_hash"
	KeySourceURL          = "source_url"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeySource     = "source"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"

	// ========================================================================
	// Storage Backend (Blob Store)
	// ========================================================================
	KeyStoreName = "store_name"
	KeyStoreType = "store_type"
	KeyBucket    = "bucket"
	KeyKey       = "key"
	KeyRegion    = "region"

	// ========================================================================
	// Metadata Store
	// ========================================================================
	KeyMetadataStore = "metadata_store"

	// ========================================================================
	// Cache Layer (dedup lookup cache)
	// ========================================================================
	KeyCacheHit      = "cache_hit"
	KeyCacheState    = "cache_state"
	KeyCacheSize     = "cache_size"
	KeyCacheCapacity = "cache_capacity"
	KeyEvicted       = "evicted"

	// ========================================================================
	// Reconciler / GC
	// ========================================================================
	KeyPassName     = "pass_name"
	KeyRecordsTotal = "records_total"
	KeyRecordsFixed = "records_fixed"
	KeyBlobsDeleted = "blobs_deleted"
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }
func SpanID(id string) slog.Attr  { return slog.String(KeySpanID, id) }

// ----------------------------------------------------------------------------
// Request / Operation
// ----------------------------------------------------------------------------

func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// ----------------------------------------------------------------------------
// File & Media Record
// ----------------------------------------------------------------------------

func FileID(id string) slog.Attr      { return slog.String(KeyFileID, id) }
func ThumbnailID(id string) slog.Attr { return slog.String(KeyThumbnailID, id) }
func Checksum(sum string) slog.Attr   { return slog.String(KeyChecksum, sum) }
func MimeType(mt string) slog.Attr    { return slog.String(KeyMimeType, mt) }
func SizeBytes(n int64) slog.Attr     { return slog.Int64(KeySizeBytes, n) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }

func OptimizationStatus(s string) slog.Attr {
	return slog.String(KeyOptimizationStatus, s)
}

func ParamsHash(h string) slog.Attr  { return slog.String(KeyParamsHash, h) }
func SourceURL(u string) slog.Attr   { return slog.String(KeySourceURL, u) }

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func ErrorCode(code string) slog.Attr { return slog.String(KeyErrorCode, code) }
func Source(src string) slog.Attr     { return slog.String(KeySource, src) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func MaxRetries(n int) slog.Attr      { return slog.Int(KeyMaxRetries, n) }

// ----------------------------------------------------------------------------
// Storage Backend (Blob Store)
// ----------------------------------------------------------------------------

func StoreName(name string) slog.Attr { return slog.String(KeyStoreName, name) }
func StoreType(t string) slog.Attr    { return slog.String(KeyStoreType, t) }
func Bucket(name string) slog.Attr    { return slog.String(KeyBucket, name) }
func Key(k string) slog.Attr          { return slog.String(KeyKey, k) }
func Region(r string) slog.Attr       { return slog.String(KeyRegion, r) }

// ----------------------------------------------------------------------------
// Metadata Store
// ----------------------------------------------------------------------------

func MetadataStore(name string) slog.Attr { return slog.String(KeyMetadataStore, name) }

// ----------------------------------------------------------------------------
// Cache Layer
// ----------------------------------------------------------------------------

func CacheHit(hit bool) slog.Attr          { return slog.Bool(KeyCacheHit, hit) }
func CacheState(state string) slog.Attr    { return slog.String(KeyCacheState, state) }
func CacheSize(size int64) slog.Attr       { return slog.Int64(KeyCacheSize, size) }
func CacheCapacity(capacity int64) slog.Attr {
	return slog.Int64(KeyCacheCapacity, capacity)
}
func Evicted(n int) slog.Attr { return slog.Int(KeyEvicted, n) }

// ----------------------------------------------------------------------------
// Reconciler / GC
// ----------------------------------------------------------------------------

func PassName(name string) slog.Attr   { return slog.String(KeyPassName, name) }
func RecordsTotal(n int) slog.Attr     { return slog.Int(KeyRecordsTotal, n) }
func RecordsFixed(n int) slog.Attr     { return slog.Int(KeyRecordsFixed, n) }
func BlobsDeleted(n int) slog.Attr     { return slog.Int(KeyBlobsDeleted, n) }
