package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ExportVersion tags export documents.
const ExportVersion = "1.0"

var (
	ErrInvalidImport  = errors.New("invalid import data: expected an object")
	ErrNoValidContent = errors.New("no valid content found in import file")
)

// ExportDocument is the downloadable, re-importable snapshot format.
type ExportDocument struct {
	Version    string              `json:"version"`
	ExportedAt time.Time           `json:"exportedAt"`
	Content    map[string]Value    `json:"content"`
	Styles     map[string]StyleMap `json:"styles"`
	Sections   []Section           `json:"sections"`
}

func Export(snap Snapshot, now time.Time) ExportDocument {
	snap = snap.Clone().Normalize()
	return ExportDocument{
		Version:    ExportVersion,
		ExportedAt: now.UTC(),
		Content:    snap.Content,
		Styles:     snap.Styles,
		Sections:   snap.Sections,
	}
}

// Marshal renders the document indented, the way it is offered for download.
func (d ExportDocument) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func ExportFilename(now time.Time) string {
	return fmt.Sprintf("portfolio-edits-%s.json", now.UTC().Format("2006-01-02"))
}

// Import holds the parts of an import document that passed validation.
// A nil part was absent or malformed and must be left untouched.
type Import struct {
	Content  map[string]Value
	Styles   map[string]StyleMap
	Sections []Section
}

func (i Import) HasContent() bool  { return i.Content != nil }
func (i Import) HasStyles() bool   { return i.Styles != nil }
func (i Import) HasSections() bool { return i.Sections != nil }

// ParseImport validates every part independently and fails only when none
// of content, styles or sections is well formed.
func ParseImport(data []byte) (Import, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return Import{}, ErrInvalidImport
	}

	var out Import
	if raw, ok := doc["content"]; ok && isObject(raw) {
		var m map[string]Value
		if err := json.Unmarshal(raw, &m); err == nil {
			out.Content = m
		}
	}
	if raw, ok := doc["styles"]; ok && isObject(raw) {
		var m map[string]StyleMap
		if err := json.Unmarshal(raw, &m); err == nil {
			out.Styles = m
		}
	}
	if raw, ok := doc["sections"]; ok && isArray(raw) {
		var sections []Section
		if err := json.Unmarshal(raw, &sections); err == nil && ValidSections(sections) {
			out.Sections = sections
		}
	}

	if !out.HasContent() && !out.HasStyles() && !out.HasSections() {
		return Import{}, ErrNoValidContent
	}
	return out, nil
}

// Apply writes the valid parts into the store without notifying subscribers.
func (i Import) Apply(s *Store) {
	if i.HasContent() {
		s.ReplaceContent(i.Content)
	}
	if i.HasStyles() {
		s.ReplaceStyles(i.Styles)
	}
	if i.HasSections() {
		s.ReplaceSections(i.Sections)
	}
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
