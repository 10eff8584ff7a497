package gorm

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bozonx/mediastore/internal/config"
	"github.com/bozonx/mediastore/pkg/model"
)

// openPostgresTestStore spins up a real Postgres container and opens the
// store against it, exercising the pgx/gorm postgres.Config path that the
// SQLite-backed tests in store_test.go never touch. Skipped under -short
// since starting a container is slow and requires a working Docker daemon.
func openPostgresTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed postgres test in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mediastore"),
		postgres.WithUsername("mediastore"),
		postgres.WithPassword("mediastore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		t.Skipf("skipping postgres integration test, container failed to start: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	s, err := New(config.DatabaseConfig{
		Type: config.DatabaseTypePostgres,
		Postgres: config.PostgresConfig{
			Host:         host,
			Port:         portNum,
			Database:     "mediastore",
			User:         "mediastore",
			Password:     "mediastore",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore_CreateAndGetFile_RoundTrips(t *testing.T) {
	s := openPostgresTestStore(t)
	ctx := context.Background()

	f := &model.File{ID: "pg-f-1", Checksum: "pgchecksum", MimeType: "image/png", Status: model.FileStatusPending, OptimizationStatus: model.OptimizationPending}
	require.NoError(t, s.CreateFile(ctx, f))

	got, err := s.GetFile(ctx, "pg-f-1")
	require.NoError(t, err)
	require.Equal(t, "pgchecksum", got.Checksum)
}

func TestPostgresStore_UpdateFileStatus_CompareAndSetSucceedsOnlyOnce(t *testing.T) {
	s := openPostgresTestStore(t)
	ctx := context.Background()

	f := &model.File{ID: "pg-f-2", Checksum: "pgchecksum2", MimeType: "image/png", Status: model.FileStatusPending, OptimizationStatus: model.OptimizationPending}
	require.NoError(t, s.CreateFile(ctx, f))

	require.NoError(t, s.UpdateFileStatus(ctx, "pg-f-2", model.FileStatusPending, model.FileStatusReady, ""))
	require.Error(t, s.UpdateFileStatus(ctx, "pg-f-2", model.FileStatusPending, model.FileStatusReady, ""))
}
