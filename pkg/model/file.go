// Package model defines the persisted record types for the file lifecycle
// engine: File (an uploaded original), Thumbnail (a derived, optimized
// asset), and the status enums that drive the upload, optimization,
// soft-delete, reconciliation, and problem-detection pipelines.
package model

import (
	"encoding/json"
	"time"
)

// FileStatus is the lifecycle status of a File record.
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"   // hashed to a temp key, not yet promoted
	FileStatusReady      FileStatus = "ready"      // promoted to its content-addressed key, readable
	FileStatusFailed     FileStatus = "failed"     // upload failed verification or promotion
	FileStatusMissing    FileStatus = "missing"    // ready record whose blob the reconciler found absent
	FileStatusSoftDeleted FileStatus = "deleted"    // soft-deleted, awaiting GC
)

// OptimizationStatus is the lifecycle status of a File's derived-asset pipeline.
type OptimizationStatus string

const (
	OptimizationPending    OptimizationStatus = "pending"
	OptimizationProcessing OptimizationStatus = "processing"
	OptimizationReady      OptimizationStatus = "ready"
	OptimizationFailed     OptimizationStatus = "failed"
	OptimizationSkipped    OptimizationStatus = "skipped" // mime type not eligible for optimization
)

// File is an uploaded original. Its blob key is content-addressed by
// (checksum, mimeType) once status reaches ready; a (checksum, mimeType)
// pair is unique among non-deleted ready records, which is how dedup and
// reference-counted GC work together.
type File struct {
	ID                 string             `gorm:"primaryKey;size:36" json:"id"`
	Checksum           string             `gorm:"size:64;index:idx_files_dedup,priority:1" json:"checksum"`
	MimeType           string             `gorm:"size:255;index:idx_files_dedup,priority:2" json:"mime_type"`
	SizeBytes          int64              `json:"size_bytes"`
	OriginalFilename   string             `gorm:"size:1024" json:"original_filename"`
	BlobKey            string             `gorm:"size:512;index" json:"-"`
	Status             FileStatus         `gorm:"size:20;index;default:pending" json:"status"`
	OptimizationStatus OptimizationStatus `gorm:"size:20;index;default:pending" json:"optimization_status"`
	SourceURL          string             `gorm:"type:text" json:"source_url,omitempty"`
	Metadata           string             `gorm:"type:text" json:"-"` // JSON blob: exif, dimensions, etc.
	FailureReason      string             `gorm:"size:1024" json:"failure_reason,omitempty"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          *time.Time         `gorm:"index" json:"deleted_at,omitempty"`

	Thumbnails []Thumbnail `gorm:"foreignKey:FileID" json:"thumbnails,omitempty"`

	ParsedMetadata map[string]any `gorm:"-" json:"metadata,omitempty"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}

// GetMetadata returns the parsed metadata blob (exif, dimensions, etc).
func (f *File) GetMetadata() (map[string]any, error) {
	if f.ParsedMetadata != nil {
		return f.ParsedMetadata, nil
	}
	if f.Metadata == "" {
		return make(map[string]any), nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(f.Metadata), &m); err != nil {
		return nil, err
	}
	f.ParsedMetadata = m
	return m, nil
}

// SetMetadata serializes the metadata blob from a map.
func (f *File) SetMetadata(m map[string]any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	f.Metadata = string(data)
	f.ParsedMetadata = m
	return nil
}

// IsReady reports whether the file is readable: ready status and not soft-deleted.
func (f *File) IsReady() bool {
	return f.Status == FileStatusReady && f.DeletedAt == nil
}

// Thumbnail is a derived, optimized asset produced from a File by the
// Optimization Engine (e.g. a resized/re-encoded variant at a given
// parameter set). ParamsHash identifies the transform parameters so the
// same (fileID, paramsHash) pair is never regenerated twice.
type Thumbnail struct {
	ID                 string             `gorm:"primaryKey;size:36" json:"id"`
	FileID             string             `gorm:"size:36;index:idx_thumbnails_lookup,priority:1" json:"file_id"`
	ParamsHash         string             `gorm:"size:64;index:idx_thumbnails_lookup,priority:2" json:"params_hash"`
	Width              int                `json:"width"`
	Height             int                `json:"height"`
	MimeType           string             `gorm:"size:255" json:"mime_type"`
	SizeBytes          int64              `json:"size_bytes"`
	BlobKey            string             `gorm:"size:512;index" json:"-"`
	OptimizationStatus OptimizationStatus `gorm:"size:20;index;default:pending" json:"optimization_status"`
	FailureReason      string             `gorm:"size:1024" json:"failure_reason,omitempty"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Thumbnail.
func (Thumbnail) TableName() string {
	return "thumbnails"
}

// Problem is a single invariant-violation record reported by the Problem
// Detector for an operator-facing report.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	FileID  string `json:"file_id,omitempty"`
}

// AllModels returns every GORM model the metadata store must migrate.
func AllModels() []any {
	return []any{
		&File{},
		&Thumbnail{},
	}
}
