package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// a 1x1 PNG header is enough for content sniffing
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type stubStrategy struct {
	name  string
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Upload(_ context.Context, img Image) (Result, error) {
	s.calls++
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{URL: "https://cdn.example/" + img.Name, Provider: s.name}, nil
}

func TestChainFallsThroughInOrder(t *testing.T) {
	first := &stubStrategy{name: "minio", err: errors.New("bucket missing")}
	second := &stubStrategy{name: "imgbb"}
	chain := NewChain(nil, first, second)

	if got := strings.Join(chain.Providers(), ","); got != "minio,imgbb,base64" {
		t.Fatalf("Providers() = %s", got)
	}

	var failures []Failure
	result, err := chain.Upload(context.Background(), Image{Name: "a.png", Data: pngBytes}, "", func(f Failure) {
		failures = append(failures, f)
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if result.Provider != "imgbb" {
		t.Fatalf("Provider = %q", result.Provider)
	}
	if len(failures) != 1 || failures[0].Provider != "minio" {
		t.Fatalf("failures = %v", failures)
	}
}

func TestChainLastResortIsDataURL(t *testing.T) {
	chain := NewChain(nil, &stubStrategy{name: "minio", err: errors.New("down")})

	result, err := chain.Upload(context.Background(), Image{Name: "a.png", Data: pngBytes}, "", nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if result.Provider != ProviderDataURL || !strings.HasPrefix(result.URL, "data:image/png;base64,") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestChainPreferredDataURLSkipsRemote(t *testing.T) {
	remote := &stubStrategy{name: "minio"}
	chain := NewChain(nil, remote)

	result, err := chain.Upload(context.Background(), Image{Name: "a.png", ContentType: "image/png", Data: pngBytes}, ProviderDataURL, nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if remote.calls != 0 || result.Provider != ProviderDataURL {
		t.Fatalf("remote called %d times, provider %q", remote.calls, result.Provider)
	}
}

func TestChainValidation(t *testing.T) {
	chain := NewChain(nil)

	_, err := chain.Upload(context.Background(), Image{Name: "notes.txt", Data: []byte("hello")}, "", nil)
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}

	big := Image{Name: "big.png", ContentType: "image/png", Data: bytes.Repeat([]byte{0}, MaxFileSize+1)}
	if _, err := chain.Upload(context.Background(), big, "", nil); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestImgbbStrategy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k-123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("image") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"url":"https://i.ibb.co/x.png","delete_url":"https://ibb.co/del"}}`)
	}))
	defer server.Close()

	strategy := NewImgbb("k-123", server.Client()).WithEndpoint(server.URL)
	result, err := strategy.Upload(context.Background(), Image{Name: "x.png", ContentType: "image/png", Data: pngBytes})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if result.URL != "https://i.ibb.co/x.png" || result.DeleteURL != "https://ibb.co/del" {
		t.Fatalf("unexpected result: %+v", result)
	}

	bad := NewImgbb("wrong", server.Client()).WithEndpoint(server.URL)
	if _, err := bad.Upload(context.Background(), Image{Data: pngBytes}); err == nil {
		t.Fatal("expected error for rejected key")
	}
}
