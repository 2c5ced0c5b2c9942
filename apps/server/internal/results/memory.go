package results

import (
	"context"
	"sync"
)

// MemoryStore keeps the most recent summaries in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	byID     map[string]Summary
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, byID: make(map[string]Summary)}
}

func (m *MemoryStore) Save(_ context.Context, s Summary) error {
	if err := validate(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[s.MatchID]; !ok {
		m.order = append(m.order, s.MatchID)
	}
	m.byID[s.MatchID] = s
	for len(m.order) > m.capacity {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Summary, error) {
	limit = clampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.byID[m.order[i]]
		s.Tape = nil
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, matchID string) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[matchID]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Close() error { return nil }
