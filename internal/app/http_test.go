package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"folio/internal/auth"
	"folio/internal/history"
	"folio/internal/search"
	"folio/internal/visit"
)

const testPassword = "secret"

type testEnv struct {
	server *HTTPServer
	repo   *MemoryRepository
	now    time.Time
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	verifier, err := auth.NewVerifier(testPassword, "")
	require.NoError(t, err)

	env := &testEnv{repo: NewMemoryRepository(), now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts := Options{
		Search: search.NewService(nil, nil),
		Now:    func() time.Time { return env.now },
	}
	if withHistory {
		opts.History = history.New(t.TempDir())
	}
	env.server = NewHTTPServer(New(env.repo, verifier, opts), "*", nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, credential string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, decodeMap(t, rr)["ok"])
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestGetContentWhenNothingStored(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodGet, "/api/content", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"content":{},"styles":{},"sections":[]}`, rr.Body.String())
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestSaveContentRequiresCredential(t *testing.T) {
	env := newTestEnv(t, false)
	body := `{"content":{"hero.title":"Hi"}}`

	for _, credential := range []string{"", "wrong"} {
		rr := env.do(t, http.MethodPost, "/api/content", credential, body)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.JSONEq(t, `{"code":"UNAUTHORIZED","error":"Unauthorized"}`, rr.Body.String())
	}

	_, found, err := env.repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.False(t, found)
}

func TestSaveThenFetchContent(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodPost, "/api/content", testPassword,
		`{"content":{"hero.title":"Hi","skills.list":["Go","ROS"]},"styles":{"hero.title":{"color":"red"}}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeMap(t, rr)
	require.Equal(t, true, payload["success"])
	require.Equal(t, "2024-05-01T12:00:00Z", payload["updatedAt"])

	rr = env.do(t, http.MethodGet, "/api/content", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{
		"content": {"hero.title": "Hi", "skills.list": ["Go", "ROS"]},
		"styles": {"hero.title": {"color": "red"}},
		"sections": [],
		"updatedAt": "2024-05-01T12:00:00Z"
	}`, rr.Body.String())
}

func TestSaveContentKeepsNumericStyles(t *testing.T) {
	env := newTestEnv(t, false)

	body := `{"content":{},"styles":{"element-size-hero":{"width":640,"height":480},"element-position-card":{"x":12,"y":-4}},"sections":[]}`
	rr := env.do(t, http.MethodPost, "/api/content", testPassword, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/content", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{
		"content": {},
		"styles": {"element-size-hero": {"width": 640, "height": 480}, "element-position-card": {"x": 12, "y": -4}},
		"sections": [],
		"updatedAt": "2024-05-01T12:00:00Z"
	}`, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/content", testPassword, `{"styles":{"hero.title":{"shadow":{"x":1}}}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSaveContentRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodPost, "/api/content", testPassword, `{"content":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "INVALID_BODY", decodeMap(t, rr)["code"])
}

func TestUnsupportedMethod(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodPut, "/api/content", testPassword, `{}`)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, "METHOD_NOT_ALLOWED", decodeMap(t, rr)["code"])
}

func TestVisitLogging(t *testing.T) {
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/visit", strings.NewReader(`{"path":"/projects","userAgent":"test-agent","screenWidth":500}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set(visit.HeaderCity, "Berlin")
	req.Header.Set(visit.HeaderCountry, "DE")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/visit", "", `{}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/visit", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/visit?limit=1", testPassword, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		Logs []visit.Entry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed.Logs, 1)
	require.Equal(t, "/", listed.Logs[0].Path, "newest entry first")
	require.Equal(t, visit.DeviceDesktop, listed.Logs[0].Device)

	entries, err := env.repo.ListVisits(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	first := entries[1]
	require.Equal(t, "203.0.113.7", first.IP)
	require.Equal(t, "Berlin, DE", first.Location)
	require.Equal(t, visit.DeviceMobile, first.Device)
	require.Equal(t, "test-agent", first.UserAgent)
}

func TestImportAndExport(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodPost, "/api/content/import", testPassword, `{"content":"nope","sections":[{"id":"x"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "VALIDATION_ERROR", decodeMap(t, rr)["code"])

	rr = env.do(t, http.MethodPost, "/api/content/import", "", `{"content":{}}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/content/import", testPassword,
		`{"version":"1.0","content":{"about.bio":"Builds robots"},"styles":[]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	applied := decodeMap(t, rr)["applied"].(map[string]any)
	require.Equal(t, map[string]any{"content": true, "styles": false, "sections": false}, applied)

	rr = env.do(t, http.MethodGet, "/api/content/export", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `attachment; filename="portfolio-edits-2024-05-01.json"`, rr.Header().Get("Content-Disposition"))
	doc := decodeMap(t, rr)
	require.Equal(t, "1.0", doc["version"])
	require.Equal(t, "2024-05-01T12:00:00Z", doc["exportedAt"])
	require.Equal(t, map[string]any{"about.bio": "Builds robots"}, doc["content"])
}

func TestHistoryAndRestore(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodGet, "/api/content/history", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decodeMap(t, rr)["revisions"])

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/content", testPassword, `{"content":{"hero.title":"First"}}`).Code)
	env.now = env.now.Add(time.Minute)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/content", testPassword, `{"content":{"hero.title":"Second"}}`).Code)

	rr = env.do(t, http.MethodGet, "/api/content/history", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		Revisions []history.Revision `json:"revisions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed.Revisions, 2)
	oldest := listed.Revisions[1].Hash

	rr = env.do(t, http.MethodPost, "/api/content/history/"+oldest+"/restore", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/content/history/deadbeef/restore", testPassword, "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/content/history/"+oldest+"/restore", testPassword, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	snap, _, err := env.repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "First", snap.Content["hero.title"].String())
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodGet, "/api/content/history", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "HISTORY_UNAVAILABLE", decodeMap(t, rr)["code"])
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/content", testPassword,
		`{"content":{"about.bio":"Builds Robots for a living","hero.title":"Hello"}}`).Code)

	rr := env.do(t, http.MethodGet, "/api/search", "", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/search?q=robots", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp search.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "about.bio", resp.Results[0].Path)
	require.Equal(t, "about", resp.Results[0].Section)
}

func multipartImage(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	body, contentType := multipartImage(t, "me.png", png)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	body, contentType = multipartImage(t, "me.png", png)
	req = httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+testPassword)
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeMap(t, rr)
	require.Equal(t, "base64", payload["provider"])
	require.True(t, strings.HasPrefix(payload["url"].(string), "data:image/png;base64,"))

	body, contentType = multipartImage(t, "notes.txt", []byte("plain text"))
	req = httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+testPassword)
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

type failingRepo struct {
	MemoryRepository
}

func (*failingRepo) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodGet, "/api/ready", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	payload := decodeMap(t, rr)
	require.Equal(t, "ready", payload["status"])

	verifier, err := auth.NewVerifier(testPassword, "")
	require.NoError(t, err)
	server := NewHTTPServer(New(&failingRepo{}, verifier, Options{}), "*", nil)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	payload = decodeMap(t, rr)
	require.Equal(t, "not_ready", payload["status"])
	checks := payload["checks"].(map[string]any)
	require.Equal(t, "error", checks["storage"].(map[string]any)["status"])
}
