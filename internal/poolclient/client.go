// Package poolclient is the HTTP client for the Workspace Pool
// Allocator: slot acquisition and release around a single Runner's
// workspace lifecycle.
package poolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the Workspace Pool Allocator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент Workspace Pool Allocator.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AllocateRequest — тело POST /slots/allocate.
type AllocateRequest struct {
	RepoURL        string `json:"repo_url"`
	RequiredBy     string `json:"required_by"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Slot — ответ на успешное выделение слота.
type Slot struct {
	SlotID   string `json:"slot_id"`
	SlotPath string `json:"slot_path"`
}

// Allocate requests a workspace slot for repoURL.
func (c *Client) Allocate(ctx context.Context, req AllocateRequest) (*Slot, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/slots/allocate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("allocate slot: %w", err)
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return nil, err
	}

	var slot Slot
	if err := json.NewDecoder(resp.Body).Decode(&slot); err != nil {
		return nil, fmt.Errorf("decode slot: %w", err)
	}
	return &slot, nil
}

// Release returns slotID to the pool. Callers should treat a failed
// release as best-effort: the pool's own lease timeout reclaims
// abandoned slots eventually.
func (c *Client) Release(ctx context.Context, slotID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/slots/"+slotID+"/release", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("release slot %s: %w", slotID, err)
	}
	defer resp.Body.Close()

	return checkError(resp)
}

// Health проверяет доступность Workspace Pool Allocator.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pool allocator health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pool allocator unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	return fmt.Errorf("pool allocator error: HTTP %d", resp.StatusCode)
}
