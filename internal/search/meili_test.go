package search

import (
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
)

// meiliRecorder answers like a Meilisearch server and logs document calls.
type meiliRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *meiliRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodGet && req.URL.Path == "/health" {
		io.WriteString(w, `{"status":"available"}`)
		return
	}
	if strings.HasPrefix(req.URL.Path, "/indexes/"+idxContent+"/documents") {
		r.mu.Lock()
		r.calls = append(r.calls, req.Method+" "+req.URL.Path)
		r.mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	io.WriteString(w, `{"taskUid":1,"indexUid":"folio_content","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"}`)
}

func (r *meiliRecorder) documentCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func TestMeiliReplaceClearsIndexOncePerProcess(t *testing.T) {
	rec := &meiliRecorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	m := NewMeili(server.URL, "", nil)
	defer m.Close()
	if !m.Healthy() {
		t.Fatal("expected healthy backend")
	}

	a := Record{ID: recordID("hero.title"), Path: "hero.title", Text: "Robotics Lead"}
	b := Record{ID: recordID("about.body"), Path: "about.body", Text: "Robots"}
	if err := m.Replace([]Record{a, b}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := m.Replace([]Record{a}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	docs := "/indexes/" + idxContent + "/documents"
	want := []string{
		"DELETE " + docs,
		"POST " + docs,
		"POST " + docs,
		"DELETE " + docs + "/" + b.ID,
	}
	if got := rec.documentCalls(); !slices.Equal(got, want) {
		t.Fatalf("document calls = %q, want %q", got, want)
	}
}
