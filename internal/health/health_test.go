package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"time"

	"testing"

	"github.com/kiln-run/runner/internal/domain"
)

type fakeSource struct {
	id      string
	state   domain.RunnerState
	task    string
	started time.Time
}

func (f fakeSource) RunnerID() string             { return f.id }
func (f fakeSource) State() domain.RunnerState     { return f.state }
func (f fakeSource) CurrentTaskID() string         { return f.task }
func (f fakeSource) StartedAt() time.Time          { return f.started }

func TestServer_Health_Healthy(t *testing.T) {
	s := NewServer(Config{
		Source: fakeSource{id: "runner-1", state: domain.RunnerStateIdle, started: time.Now().Add(-time.Minute)},
		Services: map[string]ServiceChecker{
			"task_registry": func(ctx context.Context) error { return nil },
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != "healthy" {
		t.Errorf("status = %q, want healthy", report.Status)
	}
}

func TestServer_Health_UnhealthyService(t *testing.T) {
	s := NewServer(Config{
		Source: fakeSource{id: "runner-1", state: domain.RunnerStateIdle, started: time.Now()},
		Services: map[string]ServiceChecker{
			"task_registry": func(ctx context.Context) error { return errors.New("connection refused") },
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestServer_Ready_RejectsRunningState(t *testing.T) {
	s := NewServer(Config{
		Source: fakeSource{id: "runner-1", state: domain.RunnerStateRunning, started: time.Now()},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ready", nil)
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Errorf("status = %d, want 503 while running", rec.Code)
	}
}

func TestServer_Ready_AcceptsIdle(t *testing.T) {
	s := NewServer(Config{
		Source: fakeSource{id: "runner-1", state: domain.RunnerStateIdle, started: time.Now()},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ready", nil)
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200 while idle", rec.Code)
	}
}
