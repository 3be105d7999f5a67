// Package orchestrator is the Runner's task state machine: the single
// component a caller instantiates, holding references to every other
// collaborator (credentials, permission gate, execution monitor,
// workspace manager, playbook evaluator, parallel coordinator, LLM
// driver, and the Task Registry and Artifact Store clients) and driving one task
// through Run's six phases.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiln-run/runner/internal/artifactclient"
	"github.com/kiln-run/runner/internal/config"
	"github.com/kiln-run/runner/internal/coordinator"
	"github.com/kiln-run/runner/internal/credential"
	"github.com/kiln-run/runner/internal/domain"
	"github.com/kiln-run/runner/internal/history"
	"github.com/kiln-run/runner/internal/llmdriver"
	"github.com/kiln-run/runner/internal/registryclient"
	"github.com/kiln-run/runner/internal/workspace"
)

// Config wires an Orchestrator's collaborators. Everything except
// WorkspaceManager, Credentials, and LLM is optional; a nil optional
// collaborator degrades the corresponding phase to a no-op, never a
// fatal error.
type Config struct {
	// RunnerID fixes the runner_id used in every emitted record. A
	// fresh uuid is generated when empty.
	RunnerID string

	Settings *config.Config

	Credentials      *credential.Store
	WorkspaceManager *workspace.Manager
	Coordinator      *coordinator.Registry
	LLM              llmdriver.Driver
	RegistryClient   *registryclient.Client
	ArtifactClient   *artifactclient.Client
	History          *history.Recorder

	Logger *slog.Logger
}

// Orchestrator runs one task at a time. A single instance is meant to
// be reused across tasks: each Run call resets to Idle on entry.
type Orchestrator struct {
	runnerID string
	settings *config.Config

	credentials      *credential.Store
	workspaceManager *workspace.Manager
	coordinatorReg   *coordinator.Registry
	llm              llmdriver.Driver
	registryClient   *registryclient.Client
	artifactClient   *artifactclient.Client
	history          *history.Recorder

	logger *slog.Logger

	mu                   sync.RWMutex
	state                domain.RunnerState
	currentTaskID        string
	currentSpecName      string
	currentExecutionMode domain.ExecutionMode
	startTime            time.Time
}

// New constructs an Orchestrator from cfg. cfg.Settings defaults to
// config.Defaults() when nil.
func New(cfg Config) *Orchestrator {
	runnerID := cfg.RunnerID
	if runnerID == "" {
		runnerID = uuid.New().String()
	}

	settings := cfg.Settings
	if settings == nil {
		settings = config.Defaults()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		runnerID:         runnerID,
		settings:         settings,
		credentials:      cfg.Credentials,
		workspaceManager: cfg.WorkspaceManager,
		coordinatorReg:   cfg.Coordinator,
		llm:              cfg.LLM,
		registryClient:   cfg.RegistryClient,
		artifactClient:   cfg.ArtifactClient,
		history:          cfg.History,
		logger:           logger,
		state:            domain.RunnerStateIdle,
	}
}

// RunnerID implements health.StatusSource.
func (o *Orchestrator) RunnerID() string {
	return o.runnerID
}

// State implements health.StatusSource.
func (o *Orchestrator) State() domain.RunnerState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// CurrentTaskID implements health.StatusSource.
func (o *Orchestrator) CurrentTaskID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.currentTaskID
}

// StartedAt implements health.StatusSource.
func (o *Orchestrator) StartedAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.startTime
}

// transition validates and applies a state change per §4.7.1: checks
// validity, updates in-memory state, and writes (or clears) the
// persisted RunnerStateSnapshot when state persistence is enabled.
func (o *Orchestrator) transition(next domain.RunnerState, taskID, specName string, executionMode domain.ExecutionMode) error {
	o.mu.Lock()
	current := o.state
	if !current.CanTransition(next) {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: invalid state transition %s -> %s", current, next)
	}

	o.state = next
	if taskID != "" {
		o.currentTaskID = taskID
	}
	if specName != "" {
		o.currentSpecName = specName
	}
	if executionMode != "" {
		o.currentExecutionMode = executionMode
	}
	if next == domain.RunnerStateRunning {
		o.startTime = time.Now()
	}
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	if !o.settings.PersistState {
		return nil
	}

	if next == domain.RunnerStateIdle || next == domain.RunnerStateCompleted {
		return o.clearSnapshot()
	}
	return o.writeSnapshot(snapshot)
}

// snapshotLocked builds a RunnerStateSnapshot from current fields.
// Callers must hold o.mu.
func (o *Orchestrator) snapshotLocked() domain.RunnerStateSnapshot {
	var start *time.Time
	if !o.startTime.IsZero() {
		t := o.startTime
		start = &t
	}
	var metadata map[string]any
	if o.currentExecutionMode != "" {
		metadata = map[string]any{"execution_mode": o.currentExecutionMode.String()}
	}

	return domain.RunnerStateSnapshot{
		RunnerID:    o.runnerID,
		State:       o.state,
		TaskID:      o.currentTaskID,
		SpecName:    o.currentSpecName,
		StartTime:   start,
		LastUpdated: time.Now(),
		Metadata:    metadata,
	}
}

func (o *Orchestrator) stateDir() string {
	if o.settings.StateFilePath != "" {
		return o.settings.StateFilePath
	}
	return "."
}

func (o *Orchestrator) statePath() string {
	return filepath.Join(o.stateDir(), o.runnerID+".json")
}

// writeSnapshot persists snapshot atomically: write to a temp file in
// the same directory, then rename over the final path.
func (o *Orchestrator) writeSnapshot(snapshot domain.RunnerStateSnapshot) error {
	if err := os.MkdirAll(o.stateDir(), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state snapshot: %w", err)
	}

	path := o.statePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename state snapshot: %w", err)
	}
	return nil
}

// clearSnapshot removes the persisted state file. A missing file is
// not an error.
func (o *Orchestrator) clearSnapshot() error {
	if err := os.Remove(o.statePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state snapshot: %w", err)
	}
	return nil
}

// runLog is the accumulated, timestamped execution log uploaded as
// the "log" artifact in phase 5, win or lose.
type runLog struct {
	mu    sync.Mutex
	lines []string
}

func newRunLog() *runLog {
	return &runLog{}
}

func (l *runLog) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, time.Now().UTC().Format(time.RFC3339)+" "+fmt.Sprintf(format, args...))
}

func (l *runLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := ""
	for _, line := range l.lines {
		out += line + "\n"
	}
	return out
}
