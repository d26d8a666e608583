package content

import (
	"maps"
	"slices"
	"time"
)

// Snapshot is the unit of storage and transfer, locally and remotely.
type Snapshot struct {
	Content   map[string]Value    `json:"content"`
	Styles    map[string]StyleMap `json:"styles"`
	Sections  []Section           `json:"sections"`
	UpdatedAt time.Time           `json:"updatedAt,omitzero"`
}

// EmptySnapshot returns a snapshot with non-nil, empty parts so it encodes as
// {"content":{},"styles":{},"sections":[]}.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Content:  map[string]Value{},
		Styles:   map[string]StyleMap{},
		Sections: []Section{},
	}
}

// IsEmpty reports whether no part carries data.
func (s Snapshot) IsEmpty() bool {
	return len(s.Content) == 0 && len(s.Styles) == 0 && len(s.Sections) == 0
}

// Normalize replaces nil parts with empty ones.
func (s Snapshot) Normalize() Snapshot {
	if s.Content == nil {
		s.Content = map[string]Value{}
	}
	if s.Styles == nil {
		s.Styles = map[string]StyleMap{}
	}
	if s.Sections == nil {
		s.Sections = []Section{}
	}
	return s
}

func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Content:   maps.Clone(s.Content),
		Styles:    make(map[string]StyleMap, len(s.Styles)),
		Sections:  slices.Clone(s.Sections),
		UpdatedAt: s.UpdatedAt,
	}
	for k, v := range s.Styles {
		out.Styles[k] = v.Clone()
	}
	if s.Styles == nil {
		out.Styles = nil
	}
	return out
}
