package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ ResultStore = (*MemoryStore)(nil)

// MemoryStore is a ResultStore held in process memory. It is safe for
// concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*RunRecord)}
}

func (m *MemoryStore) SaveRun(_ context.Context, rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.runs[rec.ID]; dup {
		return fmt.Errorf("run %s already stored", rec.ID)
	}
	cp := *rec
	m.runs[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]RunSummary, error) {
	m.mu.RLock()
	out := make([]RunSummary, 0, len(m.runs))
	for _, rec := range m.runs {
		out = append(out, rec.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
