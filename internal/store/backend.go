package store

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Backend is the raw byte-oriented key/value engine under ResilientStorage.
// Get returns ErrNotFound for a missing key; Set returns ErrQuotaExceeded when
// the engine is out of space.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Driver constants
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Driver      string
	SQLitePath  string
	Pool        *pgxpool.Pool
	MemoryQuota int
}

// NewBackend creates a backend based on the driver name.
func NewBackend(ctx context.Context, cfg BackendConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryBackend(cfg.MemoryQuota), nil

	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required for sqlite driver")
		}
		return NewSQLiteBackend(cfg.SQLitePath, logger)

	case DriverPostgres:
		if cfg.Pool == nil {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres driver")
		}
		return NewPostgresBackend(ctx, cfg.Pool)

	default:
		return nil, fmt.Errorf("unknown storage driver: %s (valid options: memory, sqlite, postgres)", cfg.Driver)
	}
}

var (
	_ Backend              = (*MemoryBackend)(nil)
	_ Backend              = (*SQLiteBackend)(nil)
	_ Backend              = (*PostgresBackend)(nil)
	_ domain.Storage       = (*ResilientStorage)(nil)
	_ domain.FilterCounter = (*ResilientStorage)(nil)
)
