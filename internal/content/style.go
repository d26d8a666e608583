package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// ErrStyleAttribute reports an attribute value that is not a JSON scalar.
var ErrStyleAttribute = errors.New("style attribute must be a string, number, boolean or null")

// StyleMap is a set of presentational attributes, e.g. {"color": "#fff"} or
// {"width": 640, "height": 480}. Values are strings, bools, nil or numbers;
// numbers are held as json.Number so they encode exactly as they were read.
type StyleMap map[string]any

func (m StyleMap) Clone() StyleMap {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Normalize returns a copy with Go numeric values converted to json.Number.
// It fails on an empty attribute name or a non-scalar value.
func (m StyleMap) Normalize() (StyleMap, error) {
	out := make(StyleMap, len(m))
	for key, v := range m {
		if key == "" {
			return nil, errors.New("empty style attribute name")
		}
		norm, err := normalizeAttribute(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = norm
	}
	return out, nil
}

// Text renders the attribute at key the way it appears in CSS, or "" when absent.
func (m StyleMap) Text(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (m *StyleMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	norm, err := StyleMap(raw).Normalize()
	if err != nil {
		return err
	}
	*m = norm
	return nil
}

// ParseStyleValue turns command-line text into an attribute value: numbers
// and booleans keep their JSON type, anything else stays a string.
func ParseStyleValue(s string) any {
	if s == "true" || s == "false" {
		return s == "true"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		if json.Valid([]byte(s)) {
			return json.Number(s)
		}
	}
	return s
}

func normalizeAttribute(v any) (any, error) {
	switch v := v.(type) {
	case nil, string, bool:
		return v, nil
	case json.Number:
		if !json.Valid([]byte(v)) {
			return nil, ErrStyleAttribute
		}
		return v, nil
	case int:
		return json.Number(strconv.FormatInt(int64(v), 10)), nil
	case int32:
		return json.Number(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(v, 10)), nil
	case uint:
		return json.Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(v, 10)), nil
	case float32:
		return floatNumber(float64(v))
	case float64:
		return floatNumber(v)
	default:
		return nil, ErrStyleAttribute
	}
}

func floatNumber(f float64) (any, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, ErrStyleAttribute
	}
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
}
