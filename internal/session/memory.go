package session

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	history map[string][]Score
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		history: make(map[string][]Score),
	}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return Record{}, fmt.Errorf("get session %s: %w", sessionID, ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.State.DynamicScaffold = maps.Clone(rec.State.DynamicScaffold)
	m.records[rec.SessionID] = rec
	return nil
}

func (m *MemoryStore) AppendScore(_ context.Context, sessionID string, s Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[sessionID] = append(m.history[sessionID], s)
	return nil
}

func (m *MemoryStore) History(_ context.Context, sessionID string, limit int) ([]Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[sessionID]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]Score(nil), h...), nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	delete(m.history, sessionID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
