package app

import (
	"context"
	"slices"
	"sync"

	"folio/internal/content"
	"folio/internal/visit"
)

// MemoryRepository keeps everything in process. It backs the "memory"
// storage mode and the tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	snap   *content.Snapshot
	visits []visit.Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) LoadSnapshot(context.Context) (content.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return content.Snapshot{}, false, nil
	}
	return m.snap.Clone(), true, nil
}

func (m *MemoryRepository) SaveSnapshot(_ context.Context, snap content.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := snap.Clone()
	m.snap = &stored
	return nil
}

// AppendVisit prepends entry and drops the oldest beyond visit.MaxEntries.
func (m *MemoryRepository) AppendVisit(_ context.Context, entry visit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits = slices.Insert(m.visits, 0, entry)
	if len(m.visits) > visit.MaxEntries {
		m.visits = m.visits[:visit.MaxEntries]
	}
	return nil
}

func (m *MemoryRepository) ListVisits(_ context.Context, limit int) ([]visit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.visits)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(m.visits[:n]), nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }
