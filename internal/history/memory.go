package history

import (
	"context"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/schedule"
)

type dayRecord struct {
	ExpiresAt time.Time
	Keys      map[string]struct{}
}

// MemoryStore is the single-process fallback used when no Redis address is
// configured, and the one handler tests run against. Each cache entry is
// an immutable snapshot of one student's day, replaced wholesale under the
// write lock; each entry carries its own expiry which is double-checked on
// read, with the cache TTL as the eviction backstop.
type MemoryStore struct {
	cache *otter.Cache[string, dayRecord]
	grace time.Duration
	mu    sync.Mutex
}

func NewMemoryStore(grace time.Duration) *MemoryStore {
	cache := otter.Must(&otter.Options[string, dayRecord]{
		MaximumSize:      65_536,
		InitialCapacity:  1_024,
		ExpiryCalculator: otter.ExpiryWriting[string, dayRecord](24*time.Hour + grace),
	})
	return &MemoryStore{cache: cache, grace: grace}
}

func (s *MemoryStore) MarkVerified(_ context.Context, studentID string, day time.Time, periodID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(studentID, day)
	marker := schedule.PeriodKey(day, periodID)
	record := s.liveRecord(key)
	if record == nil {
		record = &dayRecord{ExpiresAt: expiryFor(day, s.grace), Keys: map[string]struct{}{}}
	}
	if _, exists := record.Keys[marker]; exists {
		return false, nil
	}

	next := dayRecord{ExpiresAt: record.ExpiresAt, Keys: make(map[string]struct{}, len(record.Keys)+1)}
	for k := range record.Keys {
		next.Keys[k] = struct{}{}
	}
	next.Keys[marker] = struct{}{}
	s.cache.Set(key, next)
	return true, nil
}

func (s *MemoryStore) Verified(_ context.Context, studentID string, day time.Time, periodID string) (bool, error) {
	record := s.liveRecord(dayKey(studentID, day))
	if record == nil {
		return false, nil
	}
	_, exists := record.Keys[schedule.PeriodKey(day, periodID)]
	return exists, nil
}

func (s *MemoryStore) DayHistory(_ context.Context, studentID string, day time.Time) (schedule.History, error) {
	record := s.liveRecord(dayKey(studentID, day))
	if record == nil {
		return schedule.History{}, nil
	}
	hist := make(schedule.History, len(record.Keys))
	for k := range record.Keys {
		hist.Add(k)
	}
	return hist, nil
}

func (s *MemoryStore) Unmark(_ context.Context, studentID string, day time.Time, periodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(studentID, day)
	record := s.liveRecord(key)
	if record == nil {
		return nil
	}
	marker := schedule.PeriodKey(day, periodID)
	if _, exists := record.Keys[marker]; !exists {
		return nil
	}

	next := dayRecord{ExpiresAt: record.ExpiresAt, Keys: make(map[string]struct{}, len(record.Keys))}
	for k := range record.Keys {
		if k != marker {
			next.Keys[k] = struct{}{}
		}
	}
	if len(next.Keys) == 0 {
		s.cache.Invalidate(key)
		return nil
	}
	s.cache.Set(key, next)
	return nil
}

func (s *MemoryStore) PruneExpired(_ context.Context, now time.Time) (int, error) {
	stale := make([]string, 0)
	s.cache.All()(func(key string, record dayRecord) bool {
		if now.After(record.ExpiresAt) {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		s.cache.Invalidate(key)
	}
	return len(stale), nil
}

// liveRecord returns the cached day or nil once its own expiry has passed,
// invalidating lazily when the cache TTL has not caught up yet.
func (s *MemoryStore) liveRecord(key string) *dayRecord {
	record, found := s.cache.GetIfPresent(key)
	if !found {
		return nil
	}
	if time.Now().After(record.ExpiresAt) {
		s.cache.Invalidate(key)
		return nil
	}
	return &record
}
