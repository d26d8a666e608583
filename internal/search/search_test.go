package search

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"folio/internal/content"
)

func sampleSnapshot() content.Snapshot {
	return content.Snapshot{
		Content: map[string]content.Value{
			"hero.title":                    content.Text("Robotics Lead"),
			"about.body":                    content.Text("Building autonomous mobile robots"),
			"project.tesla-amr.tags":        content.Tags("ROS", "Robotics"),
			"hero.background":               content.Style(content.StyleMap{"color": "red"}),
			"project.tesla-amr.description": content.Text("   "),
		},
	}
}

func TestRecordsSkipNonTextValues(t *testing.T) {
	records := Records(sampleSnapshot())
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %+v", records)
	}
	if records[0].Path != "about.body" || records[0].Section != "about" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	for _, r := range records {
		if len(r.ID) != 40 {
			t.Fatalf("id %q is not a sha1 hex", r.ID)
		}
	}
	if records[2].Text != "ROS, Robotics" {
		t.Fatalf("tags joined as %q", records[2].Text)
	}
}

func TestMemorySearch(t *testing.T) {
	m := NewMemory()
	_ = m.Replace(Records(sampleSnapshot()))

	results, total, err := m.Search(Query{Text: "robot"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(results) != 3 {
		t.Fatalf("expected 3 hits, got %d %+v", total, results)
	}

	results, total, _ = m.Search(Query{Text: "robot", Section: "hero"})
	if total != 1 || results[0].Snippet != "<mark>Robot</mark>ics Lead" {
		t.Fatalf("unexpected section hit %+v", results)
	}

	results, total, _ = m.Search(Query{Text: "robot", Limit: 1})
	if total != 3 || len(results) != 1 {
		t.Fatalf("limit not applied: total=%d len=%d", total, len(results))
	}

	if results, _, _ := m.Search(Query{Text: "  "}); len(results) != 0 {
		t.Fatal("blank query should match nothing")
	}
}

type fakeBackend struct {
	healthy  bool
	err      error
	searched int

	mu       sync.Mutex
	replaced [][]Record
}

func (f *fakeBackend) Search(Query) ([]Result, int, error) {
	f.searched++
	if f.err != nil {
		return nil, 0, f.err
	}
	return []Result{{Path: "from.meili"}}, 1, nil
}

func (f *fakeBackend) Replace(records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, records)
	return nil
}

func (f *fakeBackend) Healthy() bool { return f.healthy }

func (f *fakeBackend) replacements() [][]Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.replaced)
}

func TestServiceFallsBackToMemory(t *testing.T) {
	svc := NewService(nil, nil)
	svc.Index(sampleSnapshot())

	resp := svc.Search(Query{Text: "lead"})
	if resp.Total != 1 || resp.Results[0].Path != "hero.title" || resp.Query != "lead" {
		t.Fatalf("unexpected response %+v", resp)
	}

	down := &fakeBackend{healthy: false}
	svc = NewService(down, nil)
	defer svc.Close()
	svc.Index(sampleSnapshot())
	if resp := svc.Search(Query{Text: "lead"}); resp.Total != 1 || down.searched != 0 {
		t.Fatalf("unhealthy backend should be skipped: %+v", resp)
	}

	failing := &fakeBackend{healthy: true, err: errors.New("boom")}
	svc = NewService(failing, nil)
	defer svc.Close()
	svc.Index(sampleSnapshot())
	if resp := svc.Search(Query{Text: "lead"}); resp.Total != 1 || resp.Results[0].Path != "hero.title" {
		t.Fatalf("expected memory fallback, got %+v", resp)
	}

	healthy := &fakeBackend{healthy: true}
	svc = NewService(healthy, nil)
	defer svc.Close()
	if resp := svc.Search(Query{Text: "x"}); resp.Results[0].Path != "from.meili" {
		t.Fatalf("expected primary result, got %+v", resp)
	}
}

func TestEmptyResultsAreNonNil(t *testing.T) {
	resp := NewService(nil, nil).Search(Query{Text: "nothing"})
	if resp.Results == nil {
		t.Fatal("results must encode as []")
	}
}

func TestServiceIndexesPrimaryInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	primary := &fakeBackend{healthy: true}
	svc := NewService(primary, nil)

	for i := 1; i <= 20; i++ {
		snap := content.EmptySnapshot()
		snap.Content["hero.title"] = content.Text(fmt.Sprintf("revision %d", i))
		svc.Index(snap)
	}
	svc.Close()

	calls := primary.replacements()
	if len(calls) == 0 {
		t.Fatal("primary was never indexed")
	}
	last := calls[len(calls)-1]
	if len(last) != 1 || last[0].Text != "revision 20" {
		t.Fatalf("last indexed records = %+v, want revision 20", last)
	}
	seen := 0
	for _, records := range calls {
		var n int
		if _, err := fmt.Sscanf(records[0].Text, "revision %d", &n); err != nil {
			t.Fatal(err)
		}
		if n <= seen {
			t.Fatalf("revision %d indexed after %d", n, seen)
		}
		seen = n
	}
}

func TestServiceSkipsUnhealthyPrimary(t *testing.T) {
	defer goleak.VerifyNone(t)
	primary := &fakeBackend{healthy: false}
	svc := NewService(primary, nil)
	svc.Index(sampleSnapshot())
	svc.Close()
	svc.Close()

	if calls := primary.replacements(); len(calls) != 0 {
		t.Fatalf("unhealthy primary was indexed %d times", len(calls))
	}
}
