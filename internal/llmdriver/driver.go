// Package llmdriver wraps the code-generation backend behind one
// narrow contract: GenerateCode. Network-class failures (timeout,
// rate limit, connection reset) are retried internally; a malformed
// response or any other API error surfaces immediately as terminal.
package llmdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kiln-run/runner/internal/domain"
	"github.com/kiln-run/runner/internal/retry"
)

// Request is the prompt sent to the code-generation backend.
type Request struct {
	Prompt        string `json:"prompt"`
	WorkspacePath string `json:"workspace_path"`
	MaxTokens     int    `json:"max_tokens,omitempty"`
}

// Response is the backend's parsed reply.
type Response struct {
	CodeChanges []domain.CodeChange `json:"code_changes"`
	Explanation string               `json:"explanation"`
	Model       string               `json:"model"`
	TokensUsed  int                  `json:"tokens_used"`
}

// Driver is the code-generation backend contract.
type Driver interface {
	GenerateCode(ctx context.Context, req Request) (*Response, error)
}

// HTTPDriver calls a code-generation backend over HTTP, retrying
// network-class errors per policy.
type HTTPDriver struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	policy     retry.Policy
}

// Config configures an HTTPDriver.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
	RetryPolicy    retry.Policy
}

// NewHTTPDriver constructs an HTTPDriver from cfg.
func NewHTTPDriver(cfg Config) *HTTPDriver {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	policy := cfg.RetryPolicy
	if policy.MaxRetries == 0 && policy.InitialDelay == 0 {
		policy = retry.NetworkDefaults()
	}

	return &HTTPDriver{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		policy: policy,
	}
}

// ErrMalformedResponse indicates the backend's reply could not be
// parsed into a Response, or that the backend answered with a 4xx
// status other than 429. Never retried: GenerateCode returns it
// immediately so the caller raises ImplementationFailed.
var ErrMalformedResponse = errors.New("llm driver: malformed response")

// GenerateCode requests an implementation for req.Prompt, retrying
// rate-limit, timeout, and connection errors internally.
func (d *HTTPDriver) GenerateCode(ctx context.Context, req Request) (*Response, error) {
	var result *Response

	_, err := retry.Do(ctx, d.policy, isNetworkClass, func(ctx context.Context, attempt int) error {
		resp, err := d.generateOnce(ctx, req)
		if err != nil {
			return err
		}
		result = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *HTTPDriver) generateOnce(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(struct {
		Prompt        string `json:"prompt"`
		WorkspacePath string `json:"workspace_path"`
		MaxTokens     int    `json:"max_tokens,omitempty"`
		Model         string `json:"model"`
	}{
		Prompt:        req.Prompt,
		WorkspacePath: req.WorkspacePath,
		MaxTokens:     req.MaxTokens,
		Model:         d.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, &networkError{cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, &networkError{cause: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: llm backend error HTTP %d: %s", ErrMalformedResponse, resp.StatusCode, string(data))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &result, nil
}

// networkError marks an error as eligible for the retry ladder:
// connection-level failures and rate limiting/server errors.
type networkError struct {
	cause error
}

func (e *networkError) Error() string { return e.cause.Error() }
func (e *networkError) Unwrap() error { return e.cause }

func isNetworkClass(err error) bool {
	var netErr *networkError
	if errors.As(err, &netErr) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
