// Package health exposes the Runner's optional HTTP health endpoint:
// GET /health reports overall status and external-collaborator
// reachability; GET /ready reports whether the Runner can accept a
// new task right now.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiln-run/runner/internal/domain"
)

// StatusSource is implemented by whatever owns the Runner's live
// state (typically the orchestrator) so health can report on it
// without owning a reference to the whole orchestrator type.
type StatusSource interface {
	RunnerID() string
	State() domain.RunnerState
	CurrentTaskID() string
	StartedAt() time.Time
}

// ServiceChecker reports whether one external collaborator is reachable.
type ServiceChecker func(ctx context.Context) error

// Report is the /health response body.
type Report struct {
	Status            string           `json:"status"`
	RunnerID          string           `json:"runner_id"`
	RunnerState       string           `json:"runner_state"`
	CurrentTask       string           `json:"current_task,omitempty"`
	UptimeSeconds     float64          `json:"uptime_seconds"`
	LastCheck         time.Time        `json:"last_check"`
	ExternalServices  map[string]string `json:"external_services"`
}

// Server serves /health and /ready for one Runner process.
type Server struct {
	source   StatusSource
	services map[string]ServiceChecker
	logger   *slog.Logger

	httpServer *http.Server
}

// Config configures a Server.
type Config struct {
	Source   StatusSource
	Services map[string]ServiceChecker
	Logger   *slog.Logger
	Port     int
}

// NewServer constructs a Server from cfg. Callers invoke Start to bind
// and serve, Stop to shut down gracefully.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{source: cfg.Source, services: cfg.Services, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	s.httpServer = &http.Server{
		Addr:    ":" + portString(cfg.Port),
		Handler: mux,
	}

	return s
}

// Start begins serving in a background goroutine. It returns
// immediately; errors other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server error", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) buildReport(ctx context.Context) (Report, bool) {
	now := time.Now()
	healthy := true

	services := make(map[string]string, len(s.services))
	for name, check := range s.services {
		if err := check(ctx); err != nil {
			services[name] = "unreachable: " + err.Error()
			healthy = false
		} else {
			services[name] = "ok"
		}
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	report := Report{
		Status:           status,
		RunnerID:         s.source.RunnerID(),
		RunnerState:      string(s.source.State()),
		CurrentTask:      s.source.CurrentTaskID(),
		UptimeSeconds:    now.Sub(s.source.StartedAt()).Seconds(),
		LastCheck:        now,
		ExternalServices: services,
	}
	return report, healthy
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, healthy := s.buildReport(r.Context())

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	_, healthy := s.buildReport(r.Context())
	state := s.source.State()

	ready := healthy && (state == domain.RunnerStateIdle || state == domain.RunnerStateCompleted)

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func portString(port int) string {
	if port <= 0 {
		port = 8080
	}
	return strconv.Itoa(port)
}
