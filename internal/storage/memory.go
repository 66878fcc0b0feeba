package storage

import (
	"context"
	"sync"

	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/subscription"
)

// MemoryStore keeps everything in process memory. It backs the "memory"
// driver used for dry runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	ops  performance.Snapshot
	subs subscription.Set
}

// NewMemoryStore returns a store seeded with the given records.
func NewMemoryStore(records ...performance.Record) *MemoryStore {
	st := &MemoryStore{ops: make(performance.Snapshot), subs: subscription.NewSet()}
	for _, rec := range records {
		st.ops[rec.ID] = cloneRecord(rec)
	}
	return st
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// All returns a copy of every record.
func (s *MemoryStore) All(context.Context) (performance.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(performance.Snapshot, len(s.ops))
	for id, rec := range s.ops {
		out[id] = cloneRecord(rec)
	}
	return out, nil
}

// ByIDs returns copies of the listed records that exist.
func (s *MemoryStore) ByIDs(_ context.Context, ids []int64) (performance.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(performance.Snapshot, len(ids))
	for _, id := range ids {
		if rec, ok := s.ops[id]; ok {
			out[id] = cloneRecord(rec)
		}
	}
	return out, nil
}

// LatestDate returns the most recent 24h date.
func (s *MemoryStore) LatestDate(context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest, ok := s.ops.LatestDate()
	return latest, ok, nil
}

// ByKind returns every subscription of kind.
func (s *MemoryStore) ByKind(_ context.Context, kind subscription.Kind) (subscription.Set, error) {
	return s.filter(func(k subscription.Key) bool { return k.Kind == kind }), nil
}

// ByUser returns every subscription of userID.
func (s *MemoryStore) ByUser(_ context.Context, userID int64) (subscription.Set, error) {
	return s.filter(func(k subscription.Key) bool { return k.UserID == userID }), nil
}

func (s *MemoryStore) filter(keep func(subscription.Key) bool) subscription.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := subscription.NewSet()
	for k := range s.subs {
		if keep(k) {
			out.Add(k)
		}
	}
	return out
}

// Add stores a subscription.
func (s *MemoryStore) Add(_ context.Context, userID, entityID int64, kind subscription.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.Add(subscription.Key{UserID: userID, EntityID: entityID, Kind: kind})
	return nil
}

// Remove deletes a subscription.
func (s *MemoryStore) Remove(_ context.Context, userID, entityID int64, kind subscription.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, subscription.Key{UserID: userID, EntityID: entityID, Kind: kind})
	return nil
}

// UpsertOperator merges metadata and the points recorded under date.
func (s *MemoryStore) UpsertOperator(_ context.Context, rec performance.Record, date string, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ops[rec.ID]
	if !ok {
		cur = performance.Record{ID: rec.ID, Perf24h: performance.Series{}, Perf30d: performance.Series{}}
	}
	cur.Name = rec.Name
	cur.ValidatorCount = rec.ValidatorCount
	cur.Verified = rec.Verified
	cur.Private = rec.Private
	cur.Address = rec.Address
	for _, h := range []performance.Horizon{performance.Horizon24h, performance.Horizon30d} {
		v, has := rec.Series(h)[date]
		if !has {
			continue
		}
		dst := cur.Series(h)
		if _, exists := dst[date]; exists && !overwrite {
			continue
		}
		dst[date] = v
	}
	s.ops[rec.ID] = cur
	return nil
}

func cloneRecord(rec performance.Record) performance.Record {
	out := rec
	out.Perf24h = make(performance.Series, len(rec.Perf24h))
	for k, v := range rec.Perf24h {
		out.Perf24h[k] = v
	}
	out.Perf30d = make(performance.Series, len(rec.Perf30d))
	for k, v := range rec.Perf30d {
		out.Perf30d[k] = v
	}
	return out
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
