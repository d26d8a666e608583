// Package search indexes the text overrides so the editor can find where a
// phrase lives. Meilisearch serves queries when reachable; an in-memory scan
// answers otherwise.
package search

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"

	"folio/internal/content"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Path    string `json:"path"`
	Section string `json:"section"`
	Text    string `json:"text"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text    string
	Section string // empty = all sections
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Record is one indexed override.
type Record struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

// Backend can execute a search and hold the indexed records.
type Backend interface {
	Search(q Query) ([]Result, int, error)
	Replace(records []Record) error
	Healthy() bool
}

const defaultLimit = 20

// Records extracts the searchable overrides from snap, sorted by path.
// Meilisearch ids may not contain dots, so ids are hashes of the path.
func Records(snap content.Snapshot) []Record {
	records := make([]Record, 0, len(snap.Content))
	for path, value := range snap.Content {
		var text string
		switch value.Kind() {
		case content.KindText:
			text = value.String()
		case content.KindTags:
			text = strings.Join(value.TagList(), ", ")
		default:
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		records = append(records, Record{
			ID:      recordID(path),
			Path:    path,
			Section: sectionOf(path),
			Text:    text,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records
}

func recordID(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

func sectionOf(path string) string {
	section, _, _ := strings.Cut(path, ".")
	return section
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
