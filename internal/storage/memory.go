package storage

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps everything in-process. It is the default driver and the
// one tests use; TTL semantics match the sqlite driver.
type memoryStore struct {
	mu sync.Mutex

	records map[string]memRecord
	windows map[string]memWindow

	// now is swappable for tests.
	now func() time.Time
}

type memRecord struct {
	rec   Record
	until time.Time
}

type memWindow struct {
	start time.Time
	count int64
}

func newMemory() *memoryStore {
	return &memoryStore{
		records: map[string]memRecord{},
		windows: map[string]memWindow{},
		now:     time.Now,
	}
}

func (s *memoryStore) GetRecord(ctx context.Context, key string) (Record, bool, error) {
	if key == "" {
		return Record{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mr, ok := s.records[key]
	if !ok {
		return Record{}, false, nil
	}
	if !s.now().Before(mr.until) {
		delete(s.records, key)
		return Record{}, false, nil
	}
	return mr.rec, true, nil
}

func (s *memoryStore) PutRecord(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	if key == "" || ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.records[key] = memRecord{rec: rec, until: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if key == "" {
		return 0, nil
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok || window <= 0 || now.Sub(w.start) >= window {
		s.windows[key] = memWindow{start: now, count: 1}
		return 1, nil
	}
	w.count++
	s.windows[key] = w
	return w.count, nil
}

func (s *memoryStore) PruneExpired(ctx context.Context) (int64, error) {
	now := s.now()
	var removed int64
	s.mu.Lock()
	for k, mr := range s.records {
		if !now.Before(mr.until) {
			delete(s.records, k)
			removed++
		}
	}
	// Window counters older than a day are certainly stale.
	for k, w := range s.windows {
		if now.Sub(w.start) >= 24*time.Hour {
			delete(s.windows, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}

func (s *memoryStore) Close() error { return nil }
