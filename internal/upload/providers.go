package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DataURL inlines the image as a base64 data URL.
type DataURL struct{}

func (DataURL) Name() string { return ProviderDataURL }

func (DataURL) Upload(_ context.Context, img Image) (Result, error) {
	encoded := base64.StdEncoding.EncodeToString(img.Data)
	return Result{
		URL:      "data:" + img.ContentType + ";base64," + encoded,
		Provider: ProviderDataURL,
	}, nil
}

// MinIOConfig configures the S3-compatible object storage strategy.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base under which objects are served; defaults to
	// the endpoint URL.
	PublicURL string
}

// MinIO stores images in an S3-compatible bucket.
type MinIO struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/")
	}
	return &MinIO{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

func (m *MinIO) Name() string { return "minio" }

func (m *MinIO) Upload(ctx context.Context, img Image) (Result, error) {
	key := objectKey(img.Name, time.Now())
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(img.Data), int64(len(img.Data)), minio.PutObjectOptions{
		ContentType: img.ContentType,
	})
	if err != nil {
		return Result{}, fmt.Errorf("put object: %w", err)
	}
	return Result{
		URL:      m.publicURL + "/" + m.bucket + "/" + key,
		Provider: m.Name(),
		PublicID: key,
	}, nil
}

func objectKey(name string, now time.Time) string {
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("uploads/%s/%s%s", now.UTC().Format("2006/01"), uuid.NewString(), ext)
}

// Imgbb posts images to the imgbb.com API.
type Imgbb struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func NewImgbb(apiKey string, httpClient *http.Client) *Imgbb {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Imgbb{apiKey: apiKey, endpoint: "https://api.imgbb.com/1/upload", http: httpClient}
}

// WithEndpoint points the strategy at another API base, e.g. a test server.
func (i *Imgbb) WithEndpoint(endpoint string) *Imgbb {
	i.endpoint = endpoint
	return i
}

func (i *Imgbb) Name() string { return "imgbb" }

func (i *Imgbb) Upload(ctx context.Context, img Image) (Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("image", base64.StdEncoding.EncodeToString(img.Data)); err != nil {
		return Result{}, err
	}
	if err := writer.Close(); err != nil {
		return Result{}, err
	}

	endpoint := i.endpoint + "?key=" + url.QueryEscape(i.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := i.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("imgbb request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("imgbb upload failed: %d", resp.StatusCode)
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			URL       string `json:"url"`
			DeleteURL string `json:"delete_url"`
		} `json:"data"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode imgbb response: %w", err)
	}
	if !payload.Success {
		if payload.Error.Message != "" {
			return Result{}, fmt.Errorf("imgbb: %s", payload.Error.Message)
		}
		return Result{}, fmt.Errorf("imgbb upload failed")
	}
	return Result{URL: payload.Data.URL, Provider: i.Name(), DeleteURL: payload.Data.DeleteURL}, nil
}
