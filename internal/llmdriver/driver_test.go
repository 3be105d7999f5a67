package llmdriver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiln-run/runner/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, ExponentialBase: 2}
}

func TestHTTPDriver_GenerateCode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code_changes":[{"file_path":"hello.txt","operation":"create","content":"hi"}],"model":"test","tokens_used":10}`))
	}))
	defer srv.Close()

	d := NewHTTPDriver(Config{BaseURL: srv.URL, RetryPolicy: fastPolicy()})
	resp, err := d.GenerateCode(context.Background(), Request{Prompt: "do the thing"})
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	if len(resp.CodeChanges) != 1 || resp.CodeChanges[0].FilePath != "hello.txt" {
		t.Errorf("unexpected code changes: %+v", resp.CodeChanges)
	}
}

func TestHTTPDriver_GenerateCode_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"code_changes":[],"model":"test"}`))
	}))
	defer srv.Close()

	d := NewHTTPDriver(Config{BaseURL: srv.URL, RetryPolicy: fastPolicy()})
	_, err := d.GenerateCode(context.Background(), Request{Prompt: "do the thing"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestHTTPDriver_GenerateCode_MalformedResponseNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	d := NewHTTPDriver(Config{BaseURL: srv.URL, RetryPolicy: fastPolicy()})
	_, err := d.GenerateCode(context.Background(), Request{Prompt: "do the thing"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a terminal error, got %d", calls)
	}
}
