// Package storeerrors provides error types and error codes shared by the
// metadata store, blob store, and every pipeline built on top of them. This
// is a leaf package with no internal dependencies, designed to be imported
// everywhere without causing import cycles.
//
// Import graph: storeerrors <- metadata/blobstore <- pipelines <- api
package storeerrors

import "fmt"

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrNotFound indicates the requested file, thumbnail, or blob key does not exist.
	ErrNotFound ErrorCode = iota + 1

	// ErrAlreadyExists indicates a record with the same identity already exists.
	ErrAlreadyExists

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument

	// ErrChecksumMismatch indicates the computed checksum did not match the expected one.
	ErrChecksumMismatch

	// ErrUnsupportedMimeType indicates the mime type is not accepted by the upload pipeline.
	ErrUnsupportedMimeType

	// ErrFileTooLarge indicates the payload exceeded the configured size ceiling.
	ErrFileTooLarge

	// ErrConflict indicates a compare-and-set update lost the race (optimisticStatus mismatch).
	ErrConflict

	// ErrBlobMissing indicates the metadata record references a blob key absent from storage.
	ErrBlobMissing

	// ErrIOError indicates an I/O error occurred talking to the blob store.
	ErrIOError

	// ErrDeleted indicates the operation targets a soft-deleted record.
	ErrDeleted

	// ErrSSRFBlocked indicates a URL download target resolved to a disallowed address.
	ErrSSRFBlocked

	// ErrDownloadTooLarge indicates a URL download exceeded the byte ceiling.
	ErrDownloadTooLarge

	// ErrDownloadTimeout indicates a URL download exceeded the time ceiling.
	ErrDownloadTimeout

	// ErrNotSupported indicates the operation is not supported by this implementation.
	ErrNotSupported
)

func (e ErrorCode) String() string {
	switch e {
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrChecksumMismatch:
		return "ChecksumMismatch"
	case ErrUnsupportedMimeType:
		return "UnsupportedMimeType"
	case ErrFileTooLarge:
		return "FileTooLarge"
	case ErrConflict:
		return "Conflict"
	case ErrBlobMissing:
		return "BlobMissing"
	case ErrIOError:
		return "IOError"
	case ErrDeleted:
		return "Deleted"
	case ErrSSRFBlocked:
		return "SSRFBlocked"
	case ErrDownloadTooLarge:
		return "DownloadTooLarge"
	case ErrDownloadTimeout:
		return "DownloadTimeout"
	case ErrNotSupported:
		return "NotSupported"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// StoreError is the error type returned by the metadata store, blob store,
// and every pipeline. Handlers map it to an HTTP status via its Code.
type StoreError struct {
	Code    ErrorCode
	Message string
	FileID  string
}

func (e *StoreError) Error() string {
	if e.FileID != "" {
		return fmt.Sprintf("%s: %s (file: %s)", e.Code, e.Message, e.FileID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ============================================================================
// Factory functions
// ============================================================================

func NewNotFoundError(fileID string) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: "file not found", FileID: fileID}
}

func NewAlreadyExistsError(fileID string) *StoreError {
	return &StoreError{Code: ErrAlreadyExists, Message: "record already exists", FileID: fileID}
}

func NewInvalidArgumentError(message string) *StoreError {
	return &StoreError{Code: ErrInvalidArgument, Message: message}
}

func NewChecksumMismatchError(fileID string) *StoreError {
	return &StoreError{Code: ErrChecksumMismatch, Message: "checksum mismatch", FileID: fileID}
}

func NewUnsupportedMimeTypeError(mimeType string) *StoreError {
	return &StoreError{Code: ErrUnsupportedMimeType, Message: fmt.Sprintf("unsupported mime type: %s", mimeType)}
}

func NewFileTooLargeError(limit int64) *StoreError {
	return &StoreError{Code: ErrFileTooLarge, Message: fmt.Sprintf("exceeds size limit of %d bytes", limit)}
}

func NewConflictError(fileID string) *StoreError {
	return &StoreError{Code: ErrConflict, Message: "concurrent status transition", FileID: fileID}
}

func NewBlobMissingError(fileID string) *StoreError {
	return &StoreError{Code: ErrBlobMissing, Message: "blob not found in content store", FileID: fileID}
}

func NewDeletedError(fileID string) *StoreError {
	return &StoreError{Code: ErrDeleted, Message: "file is soft-deleted", FileID: fileID}
}

func NewSSRFBlockedError(target string) *StoreError {
	return &StoreError{Code: ErrSSRFBlocked, Message: fmt.Sprintf("target address disallowed: %s", target)}
}

func NewDownloadTooLargeError(limit int64) *StoreError {
	return &StoreError{Code: ErrDownloadTooLarge, Message: fmt.Sprintf("download exceeds size limit of %d bytes", limit)}
}

func NewDownloadTimeoutError(url string) *StoreError {
	return &StoreError{Code: ErrDownloadTimeout, Message: fmt.Sprintf("download of %s exceeded the time ceiling", url)}
}

// ============================================================================
// Error type checking helpers
// ============================================================================

func IsNotFoundError(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrNotFound
}

func IsConflictError(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrConflict
}

func IsAlreadyExistsError(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrAlreadyExists
}

func IsDeletedError(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrDeleted
}

func IsSSRFBlockedError(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrSSRFBlocked
}
