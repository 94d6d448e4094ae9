package dedupe

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps idempotency keys in process memory. Suitable for a
// single-process deployment; records do not survive restarts.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryStore creates an empty in-memory key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time)}
}

func (m *MemoryStore) Acquire(_ context.Context, key string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = at
	return true, nil
}

// Prune drops keys recorded before the cutoff so the map does not grow
// without bound across days.
func (m *MemoryStore) Prune(olderThan time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, at := range m.seen {
		if at.Before(olderThan) {
			delete(m.seen, key)
			removed++
		}
	}
	return removed
}
