package content

import "encoding/json"

// Section describes a content block and whether it renders.
type Section struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Visible bool   `json:"visible"`
}

// UnmarshalJSON treats a missing "visible" as true, matching how renderers
// only hide sections explicitly marked invisible.
func (s *Section) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Icon    string `json:"icon"`
		Visible *bool  `json:"visible"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = Section{ID: wire.ID, Name: wire.Name, Icon: wire.Icon, Visible: true}
	if wire.Visible != nil {
		s.Visible = *wire.Visible
	}
	return nil
}

func (s Section) valid() bool {
	return s.ID != "" && s.Name != ""
}

// ValidSections reports whether every section carries an id and a name.
func ValidSections(sections []Section) bool {
	for _, s := range sections {
		if !s.valid() {
			return false
		}
	}
	return true
}

// Direction is a neighbour swap direction for Reorder.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// DefaultSections is the compiled-in page layout.
func DefaultSections() []Section {
	return []Section{
		{ID: "hero", Name: "Hero Banner", Icon: "🏠", Visible: true},
		{ID: "impact", Name: "Impact Highlights", Icon: "📈", Visible: true},
		{ID: "about", Name: "About Section", Icon: "👤", Visible: true},
		{ID: "experience", Name: "Experience", Icon: "💼", Visible: true},
		{ID: "gallery", Name: "Project Gallery", Icon: "🖼️", Visible: true},
		{ID: "teslaProjects", Name: "Tesla Projects", Icon: "🚗", Visible: true},
		{ID: "heroProjects", Name: "Hero MotoCorp Projects", Icon: "🏍️", Visible: true},
		{ID: "academicProjects", Name: "Academic Projects", Icon: "🎓", Visible: true},
		{ID: "skills", Name: "Skills", Icon: "⚡", Visible: true},
		{ID: "contact", Name: "Contact", Icon: "✉️", Visible: true},
	}
}
