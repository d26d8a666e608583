// Package localstore is the editor's local persistence: a small key/value
// store that plays the role of browser local storage, plus a guarded cache
// over it that never lets a bad entry break a session.
package localstore

import (
	"context"
	"maps"
	"sync"
)

// Keys used by the editor. Each holds one JSON document.
const (
	KeyContent    = "portfolio_content_edits"
	KeyStyles     = "portfolio_style_edits"
	KeySections   = "portfolio_sections_v2"
	KeyCredential = "portfolio_edit_password"
	KeyAttempts   = "portfolio_edit_attempts"
)

// Backend stores raw values by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Memory is an in-process Backend.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func NewMemory() *Memory {
	return &Memory{values: map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	m.writes++
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Writes counts successful Set calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Dump copies every stored value.
func (m *Memory) Dump() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values)
}
