package search

import (
	"sync"

	"go.uber.org/zap"

	"folio/internal/content"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index, which is always kept current.
type Service struct {
	meili  Backend
	memory *Memory
	logger *zap.Logger

	// one worker pushes records to the primary; only the newest pending set
	// is kept, so saves are indexed in order and bursts coalesce.
	mu      sync.Mutex
	pending []Record
	queued  bool
	wake    chan struct{}
	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

// NewService creates a search service. primary may be nil when Meilisearch
// is not configured. Call Close to stop the indexing worker.
func NewService(primary Backend, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		meili:  primary,
		memory: NewMemory(),
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if primary != nil {
		s.stopped.Add(1)
		go s.worker()
	}
	return s
}

// Index replaces the indexed records with those of snap. The in-memory
// index is updated synchronously; Meilisearch in the background.
func (s *Service) Index(snap content.Snapshot) {
	records := Records(snap)
	_ = s.memory.Replace(records)

	if s.meili == nil {
		return
	}
	s.mu.Lock()
	s.pending = records
	s.queued = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) worker() {
	defer s.stopped.Done()
	for {
		select {
		case <-s.wake:
			s.pushPending()
		case <-s.done:
			s.pushPending()
			return
		}
	}
}

func (s *Service) pushPending() {
	s.mu.Lock()
	records, queued := s.pending, s.queued
	s.pending, s.queued = nil, false
	s.mu.Unlock()
	if !queued {
		return
	}
	if !s.meili.Healthy() {
		s.logger.Debug("search: primary unhealthy, skipping index update", zap.Int("records", len(records)))
		return
	}
	if err := s.meili.Replace(records); err != nil {
		s.logger.Warn("search: index content", zap.Int("records", len(records)), zap.Error(err))
	}
}

// Close pushes the last pending update and stops the indexing worker.
func (s *Service) Close() {
	s.once.Do(func() { close(s.done) })
	s.stopped.Wait()
}

// Search tries Meilisearch if healthy, otherwise the in-memory scan.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("search: meilisearch error, falling back to memory", zap.Error(err))
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		s.logger.Error("search: memory error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Healthy reports whether the primary backend is serving queries.
func (s *Service) Healthy() bool {
	return s.meili != nil && s.meili.Healthy()
}
