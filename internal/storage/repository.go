package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"vo-performance-bot/internal/config"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/subscription"
)

var (
	// ErrNotConfigured indicates the storage handle was not initialised.
	ErrNotConfigured = errors.New("storage: not configured")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PerformanceRepository reads operator records with their series.
type PerformanceRepository interface {
	All(ctx context.Context) (performance.Snapshot, error)
	ByIDs(ctx context.Context, ids []int64) (performance.Snapshot, error)
	LatestDate(ctx context.Context) (string, bool, error)
}

// SubscriptionRepository reads and mutates subscriptions.
type SubscriptionRepository interface {
	ByKind(ctx context.Context, kind subscription.Kind) (subscription.Set, error)
	ByUser(ctx context.Context, userID int64) (subscription.Set, error)
	Add(ctx context.Context, userID, entityID int64, kind subscription.Kind) error
	Remove(ctx context.Context, userID, entityID int64, kind subscription.Kind) error
}

// OperatorWriter persists ingested operator metadata and the points recorded
// for one date. Existing points are replaced only when overwrite is set.
type OperatorWriter interface {
	UpsertOperator(ctx context.Context, rec performance.Record, date string, overwrite bool) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	PerformanceRepository
	SubscriptionRepository
	OperatorWriter
	Close() error
}

// Open initialises the configured store and applies its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("component", "storage").Logger()
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "postgres", "postgresql", "pgx":
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st := NewPostgresStore(pool, logger)
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case "sqlite", "sqlite3":
		st, err := OpenSQLite(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func readMigration(name string) (string, error) {
	b, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", name, err)
	}
	return string(b), nil
}
