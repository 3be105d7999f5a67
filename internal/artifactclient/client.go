// Package artifactclient is the HTTP client for the Artifact Store:
// multipart upload of diffs, logs, and test output, plus metadata
// lookup by URI.
package artifactclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the Artifact Store.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент Artifact Store.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UploadResult — ответ на успешную загрузку артефакта.
type UploadResult struct {
	URI string `json:"uri"`
}

// Upload sends one artifact's bytes as a multipart/form-data POST.
// artifactType is one of "diff", "log", "test".
func (c *Client) Upload(ctx context.Context, filename, artifactType string, content io.Reader, metadata map[string]any) (*UploadResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	if err := writer.WriteField("type", artifactType); err != nil {
		return nil, fmt.Errorf("write type field: %w", err)
	}

	if metadata != nil {
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
			return nil, fmt.Errorf("write metadata field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/artifacts", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload result: %w", err)
	}
	return &result, nil
}

// Metadata — ответ GET /artifacts/metadata.
type Metadata struct {
	Type      string         `json:"type"`
	SizeBytes int64          `json:"size_bytes"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// GetMetadata looks up a previously uploaded artifact by its opaque uri.
func (c *Client) GetMetadata(ctx context.Context, uri string) (*Metadata, error) {
	params := url.Values{"uri": []string{uri}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/artifacts/metadata?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get artifact metadata: %w", err)
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// Health проверяет доступность Artifact Store.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact store health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artifact store unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("artifact store error: HTTP %d: %s", resp.StatusCode, string(body))
}
