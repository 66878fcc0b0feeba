package storage

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/subscription"
)

// scanner is satisfied by pgx.Rows, pgx.Row, *sql.Rows and *sql.Row.
type scanner interface {
	Scan(dest ...any) error
}

// snapshotBuilder assembles operator and point rows into a Snapshot.
type snapshotBuilder struct {
	snap      performance.Snapshot
	malformed *malformedLog
}

func newSnapshotBuilder(malformed *malformedLog) *snapshotBuilder {
	return &snapshotBuilder{snap: make(performance.Snapshot), malformed: malformed}
}

func (b *snapshotBuilder) addOperator(row scanner) error {
	var rec performance.Record
	if err := row.Scan(&rec.ID, &rec.Name, &rec.ValidatorCount, &rec.Verified, &rec.Private, &rec.Address); err != nil {
		return fmt.Errorf("scan operator: %w", err)
	}
	rec.Perf24h = performance.Series{}
	rec.Perf30d = performance.Series{}
	b.snap[rec.ID] = rec
	return nil
}

func (b *snapshotBuilder) addPoint(row scanner) error {
	var (
		id      int64
		horizon string
		date    string
		raw     *string
	)
	if err := row.Scan(&id, &horizon, &date, &raw); err != nil {
		return fmt.Errorf("scan performance point: %w", err)
	}
	rec, ok := b.snap[id]
	if !ok {
		return nil
	}

	var value decimal.NullDecimal
	if raw != nil {
		parsed, ok := performance.ParseValue(*raw)
		if ok {
			value = parsed
		} else {
			b.malformed.report(id, horizon, date, *raw)
		}
	}

	switch performance.Horizon(horizon) {
	case performance.Horizon24h:
		rec.Perf24h[date] = value
	case performance.Horizon30d:
		rec.Perf30d[date] = value
	}
	return nil
}

func scanSubscription(row scanner) (subscription.Key, error) {
	var (
		key  subscription.Key
		kind string
	)
	if err := row.Scan(&key.UserID, &key.EntityID, &kind); err != nil {
		return subscription.Key{}, fmt.Errorf("scan subscription: %w", err)
	}
	key.Kind = subscription.Kind(kind)
	return key, nil
}

// malformedLog reports each unparseable data point once per process.
type malformedLog struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	logger zerolog.Logger
}

func newMalformedLog(logger zerolog.Logger) *malformedLog {
	return &malformedLog{seen: make(map[string]struct{}), logger: logger}
}

func (m *malformedLog) report(id int64, horizon, date, raw string) {
	key := fmt.Sprintf("%d/%s/%s", id, horizon, date)
	m.mu.Lock()
	_, dup := m.seen[key]
	if !dup {
		m.seen[key] = struct{}{}
	}
	m.mu.Unlock()
	if dup {
		return
	}
	m.logger.Warn().
		Int64("operator_id", id).
		Str("horizon", horizon).
		Str("date", date).
		Str("raw", raw).
		Msg("malformed performance value treated as absent")
}

// pointsAt returns the values recorded for date on both horizons. Horizons
// without a key for date are omitted.
func pointsAt(rec performance.Record, date string) map[performance.Horizon]*string {
	points := make(map[performance.Horizon]*string, 2)
	for _, h := range []performance.Horizon{performance.Horizon24h, performance.Horizon30d} {
		v, ok := rec.Series(h)[date]
		if !ok {
			continue
		}
		if !v.Valid {
			points[h] = nil
			continue
		}
		s := performance.FormatValue(v)
		points[h] = &s
	}
	return points
}
