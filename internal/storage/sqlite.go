package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"vo-performance-bot/internal/config"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/subscription"
)

const (
	liteListOperatorsSQL = `SELECT id, name, validator_count, verified, private, address
    FROM operators
    ORDER BY id`

	liteListPointsSQL = `SELECT operator_id, horizon, date, value
    FROM performance
    ORDER BY operator_id, horizon, date`

	liteLatestDateSQL = `SELECT MAX(date) FROM performance WHERE horizon = ?`

	liteSubscriptionsByKindSQL = `SELECT user_id, operator_id, kind
    FROM subscriptions
    WHERE kind = ?
    ORDER BY operator_id, user_id`

	liteSubscriptionsByUserSQL = `SELECT user_id, operator_id, kind
    FROM subscriptions
    WHERE user_id = ?
    ORDER BY kind, operator_id`

	liteAddSubscriptionSQL = `INSERT INTO subscriptions (user_id, operator_id, kind)
    VALUES (?, ?, ?)
    ON CONFLICT (user_id, operator_id, kind) DO NOTHING`

	liteRemoveSubscriptionSQL = `DELETE FROM subscriptions
    WHERE user_id = ? AND operator_id = ? AND kind = ?`

	liteOperatorExistsSQL = `SELECT EXISTS (SELECT 1 FROM operators WHERE id = ?)`

	liteInsertOperatorSQL = `INSERT INTO operators (id, name, validator_count, verified, private, address)
    VALUES (?, ?, ?, ?, ?, ?)`

	liteUpdateOperatorSQL = `UPDATE operators
    SET name = ?2,
        validator_count = ?3,
        verified = ?4,
        private = ?5,
        address = ?6,
        updated_at = CURRENT_TIMESTAMP
    WHERE id = ?1`

	liteInsertPointSQL = `INSERT INTO performance (operator_id, horizon, date, value)
    VALUES (?, ?, ?, ?)
    ON CONFLICT (operator_id, horizon, date) DO NOTHING`

	liteUpsertPointSQL = `INSERT INTO performance (operator_id, horizon, date, value)
    VALUES (?, ?, ?, ?)
    ON CONFLICT (operator_id, horizon, date) DO UPDATE
    SET value = excluded.value`
)

// SQLiteStore implements the repositories on a single SQLite database file.
type SQLiteStore struct {
	db        *sql.DB
	malformed *malformedLog
	logger    zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at cfg.Path and applies
// the embedded schema.
func OpenSQLite(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*SQLiteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("database.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	st := &SQLiteStore{db: db, malformed: newMalformedLog(logger), logger: logger}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema, err := readMigration("sqlite.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// All returns every stored operator.
func (s *SQLiteStore) All(ctx context.Context) (performance.Snapshot, error) {
	return s.snapshot(ctx, nil)
}

// ByIDs returns the operators whose IDs are listed. Unknown IDs are absent
// from the result.
func (s *SQLiteStore) ByIDs(ctx context.Context, ids []int64) (performance.Snapshot, error) {
	if len(ids) == 0 {
		return performance.Snapshot{}, nil
	}
	return s.snapshot(ctx, ids)
}

func (s *SQLiteStore) snapshot(ctx context.Context, ids []int64) (performance.Snapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	operatorsSQL, pointsSQL := liteListOperatorsSQL, liteListPointsSQL
	args := make([]any, 0, len(ids))
	if ids != nil {
		in := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		operatorsSQL = strings.Replace(operatorsSQL, "FROM operators", "FROM operators WHERE id IN ("+in+")", 1)
		pointsSQL = strings.Replace(pointsSQL, "FROM performance", "FROM performance WHERE operator_id IN ("+in+")", 1)
		for _, id := range ids {
			args = append(args, id)
		}
	}

	builder := newSnapshotBuilder(s.malformed)
	if err := s.each(ctx, db, operatorsSQL, args, builder.addOperator); err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	if err := s.each(ctx, db, pointsSQL, args, builder.addPoint); err != nil {
		return nil, fmt.Errorf("list performance points: %w", err)
	}
	return builder.snap, nil
}

func (s *SQLiteStore) each(ctx context.Context, db *sql.DB, query string, args []any, fn func(scanner) error) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LatestDate returns the most recent 24h data point date.
func (s *SQLiteStore) LatestDate(ctx context.Context) (string, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return "", false, err
	}
	var latest sql.NullString
	if err := db.QueryRowContext(ctx, liteLatestDateSQL, string(performance.Horizon24h)).Scan(&latest); err != nil {
		return "", false, fmt.Errorf("latest data date: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return "", false, nil
	}
	return latest.String, true, nil
}

// ByKind returns every subscription of the given kind.
func (s *SQLiteStore) ByKind(ctx context.Context, kind subscription.Kind) (subscription.Set, error) {
	return s.subscriptions(ctx, liteSubscriptionsByKindSQL, string(kind))
}

// ByUser returns every subscription held by userID.
func (s *SQLiteStore) ByUser(ctx context.Context, userID int64) (subscription.Set, error) {
	return s.subscriptions(ctx, liteSubscriptionsByUserSQL, userID)
}

func (s *SQLiteStore) subscriptions(ctx context.Context, query string, arg any) (subscription.Set, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	set := subscription.NewSet()
	err = s.each(ctx, db, query, []any{arg}, func(row scanner) error {
		key, err := scanSubscription(row)
		if err != nil {
			return err
		}
		set.Add(key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return set, nil
}

// Add stores a subscription. Adding an existing subscription is a no-op.
func (s *SQLiteStore) Add(ctx context.Context, userID, entityID int64, kind subscription.Kind) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, liteAddSubscriptionSQL, userID, entityID, string(kind)); err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	return nil
}

// Remove deletes a subscription. Removing a missing subscription is a no-op.
func (s *SQLiteStore) Remove(ctx context.Context, userID, entityID int64, kind subscription.Kind) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, liteRemoveSubscriptionSQL, userID, entityID, string(kind)); err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return nil
}

// UpsertOperator records operator metadata and the points stored under date.
func (s *SQLiteStore) UpsertOperator(ctx context.Context, rec performance.Record, date string, overwrite bool) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin operator upsert: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn().Err(rbErr).Int64("operator_id", rec.ID).Msg("rollback failed")
		}
	}()

	var exists bool
	if err := tx.QueryRowContext(ctx, liteOperatorExistsSQL, rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check operator %d: %w", rec.ID, err)
	}
	stmt := liteInsertOperatorSQL
	if exists {
		stmt = liteUpdateOperatorSQL
	}
	if _, err := tx.ExecContext(ctx, stmt, rec.ID, rec.Name, rec.ValidatorCount, rec.Verified, rec.Private, rec.Address); err != nil {
		return fmt.Errorf("write operator %d: %w", rec.ID, err)
	}

	pointSQL := liteInsertPointSQL
	if overwrite {
		pointSQL = liteUpsertPointSQL
	}
	for horizon, value := range pointsAt(rec, date) {
		if _, err := tx.ExecContext(ctx, pointSQL, rec.ID, string(horizon), date, value); err != nil {
			return fmt.Errorf("write %s point for operator %d: %w", horizon, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit operator %d: %w", rec.ID, err)
	}
	return nil
}
