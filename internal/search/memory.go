package search

import (
	"slices"
	"strings"
	"sync"
)

// Memory scans the records with a case-insensitive substring match.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Healthy() bool { return true }

func (m *Memory) Replace(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = slices.Clone(records)
	return nil
}

func (m *Memory) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Result
	total := 0
	for _, record := range m.records {
		if q.Section != "" && record.Section != q.Section {
			continue
		}
		lower := strings.ToLower(record.Text)
		idx := strings.Index(lower, needle)
		if idx < 0 && !strings.Contains(strings.ToLower(record.Path), needle) {
			continue
		}
		if len(lower) != len(record.Text) {
			// case folding moved byte offsets
			idx = -1
		}
		total++
		if len(results) >= limit {
			continue
		}
		results = append(results, Result{
			Path:    record.Path,
			Section: record.Section,
			Text:    record.Text,
			Snippet: snippet(record.Text, idx, len(needle)),
		})
	}
	return results, total, nil
}

// snippet marks the match the way Meilisearch highlights do.
func snippet(text string, idx, n int) string {
	if idx < 0 {
		return text
	}
	return text[:idx] + "<mark>" + text[idx:idx+n] + "</mark>" + text[idx+n:]
}
