package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/subscription"
)

const (
	pgListOperatorsSQL = `SELECT id, name, validator_count, verified, private, address
    FROM operators
    ORDER BY id;`

	pgListOperatorsByIDSQL = `SELECT id, name, validator_count, verified, private, address
    FROM operators
    WHERE id = ANY($1)
    ORDER BY id;`

	pgListPointsSQL = `SELECT operator_id, horizon, date, value
    FROM performance
    ORDER BY operator_id, horizon, date;`

	pgListPointsByIDSQL = `SELECT operator_id, horizon, date, value
    FROM performance
    WHERE operator_id = ANY($1)
    ORDER BY operator_id, horizon, date;`

	pgLatestDateSQL = `SELECT MAX(date) FROM performance WHERE horizon = $1;`

	pgSubscriptionsByKindSQL = `SELECT user_id, operator_id, kind
    FROM subscriptions
    WHERE kind = $1
    ORDER BY operator_id, user_id;`

	pgSubscriptionsByUserSQL = `SELECT user_id, operator_id, kind
    FROM subscriptions
    WHERE user_id = $1
    ORDER BY kind, operator_id;`

	pgAddSubscriptionSQL = `INSERT INTO subscriptions (user_id, operator_id, kind)
    VALUES ($1, $2, $3)
    ON CONFLICT (user_id, operator_id, kind) DO NOTHING;`

	pgRemoveSubscriptionSQL = `DELETE FROM subscriptions
    WHERE user_id = $1 AND operator_id = $2 AND kind = $3;`

	pgOperatorExistsSQL = `SELECT EXISTS (SELECT 1 FROM operators WHERE id = $1);`

	pgInsertOperatorSQL = `INSERT INTO operators (id, name, validator_count, verified, private, address)
    VALUES ($1, $2, $3, $4, $5, $6);`

	pgUpdateOperatorSQL = `UPDATE operators
    SET name = $2,
        validator_count = $3,
        verified = $4,
        private = $5,
        address = $6,
        updated_at = NOW()
    WHERE id = $1;`

	pgInsertPointSQL = `INSERT INTO performance (operator_id, horizon, date, value)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (operator_id, horizon, date) DO NOTHING;`

	pgUpsertPointSQL = `INSERT INTO performance (operator_id, horizon, date, value)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (operator_id, horizon, date) DO UPDATE
    SET value = EXCLUDED.value;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore implements the repositories on top of a pgx pool.
type PostgresStore struct {
	pool      *pgxpool.Pool
	malformed *malformedLog
	logger    zerolog.Logger
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, malformed: newMalformedLog(logger), logger: logger}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate applies the embedded schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	schema, err := readMigration("postgres.sql")
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			s.logger.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
		conn.Release()
	}
	return unlock, true, nil
}

// All returns every stored operator.
func (s *PostgresStore) All(ctx context.Context) (performance.Snapshot, error) {
	return s.snapshot(ctx, pgListOperatorsSQL, pgListPointsSQL)
}

// ByIDs returns the operators whose IDs are listed. Unknown IDs are absent
// from the result.
func (s *PostgresStore) ByIDs(ctx context.Context, ids []int64) (performance.Snapshot, error) {
	if len(ids) == 0 {
		return performance.Snapshot{}, nil
	}
	return s.snapshot(ctx, pgListOperatorsByIDSQL, pgListPointsByIDSQL, ids)
}

func (s *PostgresStore) snapshot(ctx context.Context, operatorsSQL, pointsSQL string, args ...any) (performance.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	builder := newSnapshotBuilder(s.malformed)

	rows, err := pool.Query(ctx, operatorsSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	for rows.Next() {
		if err := builder.addOperator(rows); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}

	rows, err = pool.Query(ctx, pointsSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("list performance points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := builder.addPoint(rows); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list performance points: %w", err)
	}
	return builder.snap, nil
}

// LatestDate returns the most recent 24h data point date.
func (s *PostgresStore) LatestDate(ctx context.Context) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}
	var latest *string
	if err := pool.QueryRow(ctx, pgLatestDateSQL, string(performance.Horizon24h)).Scan(&latest); err != nil {
		return "", false, fmt.Errorf("latest data date: %w", err)
	}
	if latest == nil {
		return "", false, nil
	}
	return *latest, true, nil
}

// ByKind returns every subscription of the given kind.
func (s *PostgresStore) ByKind(ctx context.Context, kind subscription.Kind) (subscription.Set, error) {
	return s.subscriptions(ctx, pgSubscriptionsByKindSQL, string(kind))
}

// ByUser returns every subscription held by userID.
func (s *PostgresStore) ByUser(ctx context.Context, userID int64) (subscription.Set, error) {
	return s.subscriptions(ctx, pgSubscriptionsByUserSQL, userID)
}

func (s *PostgresStore) subscriptions(ctx context.Context, query string, arg any) (subscription.Set, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	set := subscription.NewSet()
	for rows.Next() {
		key, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		set.Add(key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return set, nil
}

// Add stores a subscription. Adding an existing subscription is a no-op.
func (s *PostgresStore) Add(ctx context.Context, userID, entityID int64, kind subscription.Kind) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgAddSubscriptionSQL, userID, entityID, string(kind)); err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	return nil
}

// Remove deletes a subscription. Removing a missing subscription is a no-op.
func (s *PostgresStore) Remove(ctx context.Context, userID, entityID int64, kind subscription.Kind) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgRemoveSubscriptionSQL, userID, entityID, string(kind)); err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return nil
}

// UpsertOperator records operator metadata and the points stored under date.
func (s *PostgresStore) UpsertOperator(ctx context.Context, rec performance.Record, date string, overwrite bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin operator upsert: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn().Err(rbErr).Int64("operator_id", rec.ID).Msg("rollback failed")
		}
	}()

	var exists bool
	if err := tx.QueryRow(ctx, pgOperatorExistsSQL, rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check operator %d: %w", rec.ID, err)
	}
	stmt := pgInsertOperatorSQL
	if exists {
		stmt = pgUpdateOperatorSQL
	}
	if _, err := tx.Exec(ctx, stmt, rec.ID, rec.Name, rec.ValidatorCount, rec.Verified, rec.Private, rec.Address); err != nil {
		return fmt.Errorf("write operator %d: %w", rec.ID, err)
	}

	pointSQL := pgInsertPointSQL
	if overwrite {
		pointSQL = pgUpsertPointSQL
	}
	for horizon, value := range pointsAt(rec, date) {
		if _, err := tx.Exec(ctx, pointSQL, rec.ID, string(horizon), date, value); err != nil {
			return fmt.Errorf("write %s point for operator %d: %w", horizon, rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit operator %d: %w", rec.ID, err)
	}
	return nil
}
