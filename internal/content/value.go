package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindTags
	KindStyle
	// KindRaw keeps JSON we do not model so it survives a round-trip.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTags:
		return "tags"
	case KindStyle:
		return "style"
	case KindRaw:
		return "raw"
	default:
		return "none"
	}
}

// Value is a single override: text, an ordered tag list or a style map.
// The zero Value is "no value" and is never stored.
type Value struct {
	kind  Kind
	text  string
	tags  []string
	style StyleMap
	raw   json.RawMessage
}

func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

func Tags(tags ...string) Value {
	if tags == nil {
		tags = []string{}
	}
	return Value{kind: KindTags, tags: slices.Clone(tags)}
}

// Style wraps a style map. A map with non-scalar attributes yields the zero Value.
func Style(m StyleMap) Value {
	norm, err := m.Normalize()
	if err != nil {
		return Value{}
	}
	return Value{kind: KindStyle, style: norm}
}

// Raw wraps arbitrary JSON. Invalid JSON yields the zero Value.
func Raw(data json.RawMessage) Value {
	if !json.Valid(data) {
		return Value{}
	}
	return Value{kind: KindRaw, raw: slices.Clone(data)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsZero() bool { return v.kind == KindNone }

// String returns the text of a text value and "" otherwise.
func (v Value) String() string {
	if v.kind != KindText {
		return ""
	}
	return v.text
}

func (v Value) TagList() []string {
	if v.kind != KindTags {
		return nil
	}
	return slices.Clone(v.tags)
}

func (v Value) StyleMap() StyleMap {
	if v.kind != KindStyle {
		return nil
	}
	return v.style.Clone()
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == other.text
	case KindTags:
		return slices.Equal(v.tags, other.tags)
	case KindStyle:
		return maps.Equal(v.style, other.style)
	case KindRaw:
		return bytes.Equal(v.raw, other.raw)
	default:
		return true
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindTags:
		return json.Marshal(v.tags)
	case KindStyle:
		return json.Marshal(v.style)
	case KindRaw:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case 'n':
		*v = Value{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case '[':
		var tags []string
		if err := json.Unmarshal(trimmed, &tags); err == nil {
			*v = Tags(tags...)
			return nil
		}
	case '{':
		var style StyleMap
		if err := json.Unmarshal(trimmed, &style); err == nil {
			*v = Style(style)
			return nil
		}
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("invalid value JSON")
	}
	*v = Raw(trimmed)
	return nil
}
