// Package gorm implements the metadata.Store interface on GORM, supporting
// both SQLite (single-node/dev) and PostgreSQL (HA) backends through the
// same codebase, exactly as the teacher's control-plane store does.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	gormlib "gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bozonx/mediastore/internal/config"
	"github.com/bozonx/mediastore/pkg/model"
	"github.com/bozonx/mediastore/pkg/storeerrors"
)

// Store implements metadata.Store using GORM.
type Store struct {
	db *gormlib.DB
}

// New opens the metadata store based on the given database configuration
// and runs AutoMigrate against model.AllModels().
func New(cfg config.DatabaseConfig) (*Store, error) {
	var dialector gormlib.Dialector

	switch cfg.Type {
	case config.DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn := cfg.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case config.DatabaseTypePostgres:
		// Open through pgx's database/sql driver directly rather than
		// postgres.Open's default pgconn path, so PreferSimpleProtocol can
		// be honored when the target is a transaction-mode PgBouncer pool.
		pgxCfg, err := pgx.ParseConfig(cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
		}
		sqlDB := stdlib.OpenDB(*pgxCfg)
		dialector = postgres.New(postgres.Config{
			Conn:                 sqlDB,
			PreferSimpleProtocol: cfg.Postgres.PreferSimpleProtocol,
		})

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gormlib.Open(dialector, &gormlib.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == config.DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying GORM database connection for advanced queries and tests.
func (s *Store) DB() *gormlib.DB {
	return s.db
}

func (s *Store) CreateFile(ctx context.Context, f *model.File) error {
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueConstraintError(err) {
			return storeerrors.NewAlreadyExistsError(f.ID)
		}
		return err
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	if err := s.db.WithContext(ctx).Unscoped().Preload("Thumbnails").First(&f, "id = ?", id).Error; err != nil {
		return nil, convertNotFound(err, storeerrors.NewNotFoundError(id))
	}
	return &f, nil
}

func (s *Store) FindReadyByChecksum(ctx context.Context, checksum, mimeType string) (*model.File, error) {
	var f model.File
	err := s.db.WithContext(ctx).
		Where("checksum = ? AND mime_type = ? AND status = ? AND deleted_at IS NULL", checksum, mimeType, model.FileStatusReady).
		First(&f).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (s *Store) CountReadyByChecksum(ctx context.Context, checksum, mimeType string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.File{}).
		Where("checksum = ? AND mime_type = ? AND status = ? AND deleted_at IS NULL", checksum, mimeType, model.FileStatusReady).
		Count(&count).Error
	return count, err
}

// UpdateFileStatus is a row-count-as-lock compare-and-set: the WHERE clause
// includes the expected current status, so only one concurrent writer ever
// succeeds in moving a given row out of that status.
func (s *Store) UpdateFileStatus(ctx context.Context, id string, expected, next model.FileStatus, failureReason string) error {
	updates := map[string]any{
		"status":         next,
		"failure_reason": failureReason,
		"updated_at":     time.Now(),
	}
	res := s.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storeerrors.NewConflictError(id)
	}
	return nil
}

func (s *Store) UpdateFileOptimizationStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, failureReason string) error {
	updates := map[string]any{
		"optimization_status": next,
		"failure_reason":      failureReason,
		"updated_at":          time.Now(),
	}
	res := s.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND optimization_status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storeerrors.NewConflictError(id)
	}
	return nil
}

func (s *Store) SoftDeleteFile(ctx context.Context, id string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", id, model.FileStatusReady).
		Updates(map[string]any{"status": model.FileStatusSoftDeleted, "deleted_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storeerrors.NewNotFoundError(id)
	}
	return nil
}

func (s *Store) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.File, error) {
	var files []*model.File
	err := s.db.WithContext(ctx).Unscoped().
		Where("status = ? AND deleted_at IS NOT NULL AND deleted_at < ?", model.FileStatusSoftDeleted, cutoff).
		Limit(limit).Find(&files).Error
	return files, err
}

func (s *Store) ListByStatusOlderThan(ctx context.Context, status model.FileStatus, cutoff time.Time, limit int) ([]*model.File, error) {
	var files []*model.File
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Limit(limit).Find(&files).Error
	return files, err
}

func (s *Store) ListReadyBatch(ctx context.Context, afterUpdatedAt time.Time, limit int) ([]*model.File, error) {
	var files []*model.File
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at > ?", model.FileStatusReady, afterUpdatedAt).
		Order("updated_at ASC").
		Limit(limit).Find(&files).Error
	return files, err
}

func (s *Store) HardDeleteFile(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Unscoped().Delete(&model.File{}, "id = ?", id).Error
}

func (s *Store) CreateThumbnail(ctx context.Context, t *model.Thumbnail) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Store) GetThumbnail(ctx context.Context, fileID, paramsHash string) (*model.Thumbnail, error) {
	var t model.Thumbnail
	err := s.db.WithContext(ctx).Where("file_id = ? AND params_hash = ?", fileID, paramsHash).First(&t).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListThumbnails(ctx context.Context, fileID string) ([]*model.Thumbnail, error) {
	var thumbs []*model.Thumbnail
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Find(&thumbs).Error
	return thumbs, err
}

func (s *Store) UpdateThumbnailStatus(ctx context.Context, id string, expected, next model.OptimizationStatus, blobKey string, width, height int, sizeBytes int64, failureReason string) error {
	updates := map[string]any{
		"optimization_status": next,
		"failure_reason":      failureReason,
		"updated_at":          time.Now(),
	}
	if blobKey != "" {
		updates["blob_key"] = blobKey
		updates["width"] = width
		updates["height"] = height
		updates["size_bytes"] = sizeBytes
	}
	res := s.db.WithContext(ctx).Model(&model.Thumbnail{}).
		Where("id = ? AND optimization_status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storeerrors.NewConflictError(id)
	}
	return nil
}

func (s *Store) ListThumbnailsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Thumbnail, error) {
	var thumbs []*model.Thumbnail
	err := s.db.WithContext(ctx).Where("updated_at < ?", cutoff).Limit(limit).Find(&thumbs).Error
	return thumbs, err
}

func (s *Store) HardDeleteThumbnail(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&model.Thumbnail{}, "id = ?", id).Error
}

func (s *Store) CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error) {
	type row struct {
		Status model.FileStatus
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&model.File{}).Unscoped().
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[model.FileStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

func convertNotFound(err error, notFoundErr error) error {
	if errors.Is(err, gormlib.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
