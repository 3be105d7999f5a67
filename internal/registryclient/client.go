// Package registryclient is the HTTP client for the Task Registry:
// status updates, lifecycle events, and artifact metadata reports for
// one task.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the Task Registry on behalf of one Runner.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент Task Registry с base URL baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StatusUpdate — тело PUT /tasks/{task_id}/status.
type StatusUpdate struct {
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// UpdateStatus сообщает текущий статус задачи.
func (c *Client) UpdateStatus(ctx context.Context, taskID string, update StatusUpdate) error {
	return c.doVoid(ctx, http.MethodPut, "/tasks/"+taskID+"/status", update)
}

// Event — тело POST /tasks/{task_id}/events.
type Event struct {
	EventType string         `json:"event_type"` // TaskStarted, TaskCompleted, TaskFailed
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PostEvent публикует событие жизненного цикла задачи.
func (c *Client) PostEvent(ctx context.Context, taskID string, event Event) error {
	return c.doVoid(ctx, http.MethodPost, "/tasks/"+taskID+"/events", event)
}

// ArtifactReport — тело POST /tasks/{task_id}/artifacts.
type ArtifactReport struct {
	Type      string         `json:"type"` // diff, log, test
	URI       string         `json:"uri"`
	SizeBytes int64          `json:"size_bytes"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReportArtifact registers an uploaded artifact against a task.
func (c *Client) ReportArtifact(ctx context.Context, taskID string, artifact ArtifactReport) error {
	return c.doVoid(ctx, http.MethodPost, "/tasks/"+taskID+"/artifacts", artifact)
}

// Health проверяет доступность Task Registry.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("task registry health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("task registry unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doVoid(ctx context.Context, method, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	return checkError(resp)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("task registry error: HTTP %d: %s", resp.StatusCode, string(body))
}
