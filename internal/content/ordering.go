package content

import (
	"slices"

	"go.uber.org/zap"
)

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.sections, func(sec Section) bool { return sec.ID == id })
}

// Reorder swaps the section with its neighbour in dir. Boundaries and
// unknown ids are no-ops.
func (s *Store) Reorder(id string, dir Direction) {
	s.mu.Lock()
	idx := s.indexOf(id)
	target := idx - 1
	if dir == Down {
		target = idx + 1
	}
	if idx < 0 || (dir != Up && dir != Down) || target < 0 || target >= len(s.sections) {
		s.mu.Unlock()
		return
	}
	s.sections = slices.Clone(s.sections)
	s.sections[idx], s.sections[target] = s.sections[target], s.sections[idx]
	s.mu.Unlock()
	s.notify(ChannelSections)
}

// MoveSection reinserts the section at index from at index to, shifting the
// ones in between. Used for drag and drop.
func (s *Store) MoveSection(from, to int) {
	s.mu.Lock()
	n := len(s.sections)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		s.mu.Unlock()
		return
	}
	moved := s.sections[from]
	rest := slices.Delete(slices.Clone(s.sections), from, from+1)
	s.sections = slices.Insert(rest, to, moved)
	s.mu.Unlock()
	s.notify(ChannelSections)
}

// ToggleVisibility flips the visible flag; the section keeps its position.
func (s *Store) ToggleVisibility(id string) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.sections = slices.Clone(s.sections)
	s.sections[idx].Visible = !s.sections[idx].Visible
	s.mu.Unlock()
	s.notify(ChannelSections)
}

// AddSection appends tpl as a visible section.
func (s *Store) AddSection(tpl Section) {
	if !tpl.valid() {
		s.logger.Warn("content: rejected section template without id or name",
			zap.String("id", tpl.ID), zap.String("name", tpl.Name))
		return
	}
	tpl.Visible = true
	s.mu.Lock()
	s.sections = append(slices.Clone(s.sections), tpl)
	s.mu.Unlock()
	s.notify(ChannelSections)
}

func (s *Store) RemoveSection(id string) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.sections = slices.Delete(slices.Clone(s.sections), idx, idx+1)
	s.mu.Unlock()
	s.notify(ChannelSections)
}

// SetSections replaces the list as one edit, e.g. after a drag gesture.
func (s *Store) SetSections(sections []Section) {
	if !ValidSections(sections) {
		s.logger.Warn("content: rejected section list with missing id or name")
		return
	}
	s.mu.Lock()
	s.sections = slices.Clone(sections)
	s.mu.Unlock()
	s.notify(ChannelSections)
}

// Visible reports whether a section renders. Unknown ids are visible.
func (s *Store) Visible(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return true
	}
	return s.sections[idx].Visible
}

// Order lists the ids of visible sections in render order.
func (s *Store) Order() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sections))
	for _, sec := range s.sections {
		if sec.Visible {
			ids = append(ids, sec.ID)
		}
	}
	return ids
}
