// Package content holds the in-memory override state of an editing session:
// path-keyed content and style overrides plus the ordered section list.
package content

import (
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Channel names the namespace a mutation touched.
type Channel string

const (
	ChannelContent  Channel = "content"
	ChannelStyles   Channel = "styles"
	ChannelSections Channel = "sections"
)

// Store is the override container. Lookups fall back to caller defaults;
// invalid writes are logged and dropped so rendering never breaks.
type Store struct {
	logger *zap.Logger

	mu       sync.RWMutex
	content  map[string]Value
	styles   map[string]StyleMap
	sections []Section

	subMu       sync.Mutex
	subscribers []func(Channel)
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger:   logger,
		content:  map[string]Value{},
		styles:   map[string]StyleMap{},
		sections: DefaultSections(),
	}
}

// Subscribe registers fn to be called after every accepted mutation.
func (s *Store) Subscribe(fn func(Channel)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify(ch Channel) {
	s.subMu.Lock()
	subs := slices.Clone(s.subscribers)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(ch)
	}
}

// Get returns the override at path, or def when none is set.
func (s *Store) Get(path string, def Value) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.content[path]
	if !ok || v.IsZero() {
		return def
	}
	return v
}

// Text returns the text override at path, or def when absent or not text.
func (s *Store) Text(path, def string) string {
	v := s.Get(path, Value{})
	if v.Kind() != KindText {
		return def
	}
	return v.String()
}

func (s *Store) Set(path string, v Value) {
	if path == "" {
		s.logger.Warn("content: rejected override with empty path")
		return
	}
	if v.IsZero() {
		s.logger.Warn("content: rejected empty override value", zap.String("path", path))
		return
	}
	s.mu.Lock()
	s.content[path] = v
	s.mu.Unlock()
	s.notify(ChannelContent)
}

// Style returns the style override at path, or an empty map.
func (s *Store) Style(path string) StyleMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.styles[path]; ok && m != nil {
		return m.Clone()
	}
	return StyleMap{}
}

func (s *Store) SetStyle(path string, m StyleMap) {
	if path == "" {
		s.logger.Warn("content: rejected style with empty path")
		return
	}
	if m == nil {
		s.logger.Warn("content: rejected non-map style", zap.String("path", path))
		return
	}
	norm, err := m.Normalize()
	if err != nil {
		s.logger.Warn("content: rejected style", zap.String("path", path), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.styles[path] = norm
	s.mu.Unlock()
	s.notify(ChannelStyles)
}

func (s *Store) Content() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.content)
}

func (s *Store) Styles() map[string]StyleMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StyleMap, len(s.styles))
	for k, v := range s.styles {
		out[k] = v.Clone()
	}
	return out
}

func (s *Store) Sections() []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sections)
}

// Snapshot copies the whole state.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Content:  s.Content(),
		Styles:   s.Styles(),
		Sections: s.Sections(),
	}
}

// Replace swaps in persisted state without notifying subscribers. An empty
// section list keeps the defaults.
func (s *Store) Replace(snap Snapshot) {
	snap = snap.Clone().Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = snap.Content
	s.styles = snap.Styles
	if len(snap.Sections) > 0 {
		s.sections = snap.Sections
	} else {
		s.sections = DefaultSections()
	}
}

// ReplaceContent, ReplaceStyles and ReplaceSections swap in a single part.
func (s *Store) ReplaceContent(m map[string]Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = maps.Clone(m)
	if s.content == nil {
		s.content = map[string]Value{}
	}
}

func (s *Store) ReplaceStyles(m map[string]StyleMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.styles = make(map[string]StyleMap, len(m))
	for k, v := range m {
		s.styles[k] = v.Clone()
	}
}

func (s *Store) ReplaceSections(sections []Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = slices.Clone(sections)
}

// Reset clears every override and restores the default sections.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = map[string]Value{}
	s.styles = map[string]StyleMap{}
	s.sections = DefaultSections()
}
