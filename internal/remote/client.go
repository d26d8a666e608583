// Package remote is the HTTP client for the content API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"folio/internal/content"
	"folio/internal/upload"
	"folio/internal/visit"
)

var ErrUnauthorized = errors.New("unauthorized - invalid password")

// StatusError is returned for non-2xx responses other than 401.
type StatusError struct {
	Status int
	Op     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %d", e.Op, e.Status)
}

// Client talks to the content and visit endpoints under BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Fetch reads the stored snapshot. An empty store yields an empty snapshot.
func (c *Client) Fetch(ctx context.Context) (content.Snapshot, error) {
	var snap content.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/content", "", nil, "", &snap, "fetch content"); err != nil {
		return content.Snapshot{}, err
	}
	return snap.Normalize(), nil
}

// Save stores the full snapshot and returns the server's timestamp.
func (c *Client) Save(ctx context.Context, snap content.Snapshot, credential string) (time.Time, error) {
	snap = snap.Normalize()
	body, err := json.Marshal(struct {
		Content  map[string]content.Value    `json:"content"`
		Styles   map[string]content.StyleMap `json:"styles"`
		Sections []content.Section           `json:"sections"`
	}{snap.Content, snap.Styles, snap.Sections})
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	var result struct {
		Success   bool      `json:"success"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/content", credential, bytes.NewReader(body), "application/json", &result, "save content"); err != nil {
		return time.Time{}, err
	}
	return result.UpdatedAt, nil
}

// LogVisit reports a page view.
func (c *Client) LogVisit(ctx context.Context, report visit.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal visit: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/visit", "", bytes.NewReader(body), "application/json", nil, "log visit")
}

// Visits lists the most recent visits, newest first.
func (c *Client) Visits(ctx context.Context, credential string, limit int) ([]visit.Entry, error) {
	path := "/api/visit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var result struct {
		Logs []visit.Entry `json:"logs"`
	}
	if err := c.do(ctx, http.MethodGet, path, credential, nil, "", &result, "fetch visits"); err != nil {
		return nil, err
	}
	return result.Logs, nil
}

// Upload sends an image to the server's upload chain.
func (c *Client) Upload(ctx context.Context, credential string, img upload.Image, preferred string) (upload.Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if preferred != "" {
		if err := writer.WriteField("provider", preferred); err != nil {
			return upload.Result{}, err
		}
	}
	part, err := writer.CreateFormFile("file", img.Name)
	if err != nil {
		return upload.Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return upload.Result{}, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return upload.Result{}, err
	}

	var result upload.Result
	if err := c.do(ctx, http.MethodPost, "/api/upload", credential, &buf, writer.FormDataContentType(), &result, "upload image"); err != nil {
		return upload.Result{}, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path, credential string, body io.Reader, contentType string, target any, op string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Op: op}
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
