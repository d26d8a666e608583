package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxContent = "folio_content"

// Meili implements Backend via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}

	mu      sync.Mutex
	indexed map[string]struct{}
	// seeded is false until this process has replaced the whole index once.
	seeded bool
}

// NewMeili creates a Meilisearch client and configures the index. The
// returned value is usable even when the server is down; Healthy reports
// false until it answers.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client:  client,
		logger:  logger,
		done:    make(chan struct{}),
		indexed: map[string]struct{}{},
	}

	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxContent,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxContent), zap.Error(err))
	}

	index := m.client.Index(idxContent)
	filterable := []interface{}{"section"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"text", "path"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
				m.mu.Lock()
				m.seeded = false
				m.mu.Unlock()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Replace upserts records and deletes the ones indexed earlier that are no
// longer present. The first call in a process clears the index, since ids
// written by an earlier run are not known here.
func (m *Meili) Replace(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.client.Index(idxContent)
	if !m.seeded {
		// tasks run in enqueue order, so the adds below land after the wipe
		if _, err := index.DeleteAllDocuments(nil); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		m.indexed = map[string]struct{}{}
	}
	if len(records) > 0 {
		if _, err := index.AddDocuments(records, nil); err != nil {
			return fmt.Errorf("index records: %w", err)
		}
	}

	next := make(map[string]struct{}, len(records))
	for _, record := range records {
		next[record.ID] = struct{}{}
	}
	for id := range m.indexed {
		if _, keep := next[id]; keep {
			continue
		}
		if _, err := index.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	m.indexed = next
	m.seeded = true
	return nil
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = defaultLimit
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxContent,
		Query:                 q.Text,
		Limit:                 limit,
		AttributesToHighlight: []string{"text"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Section != "" {
		sr.Filter = []string{fmt.Sprintf("section = %q", q.Section)}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	text := decodeString(hit, "text")
	return Result{
		Path:    decodeString(hit, "path"),
		Section: decodeString(hit, "section"),
		Text:    text,
		Snippet: firstNonBlank(decodeFormattedString(hit, "text"), text),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
