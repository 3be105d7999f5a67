// Package coordinator is the file-backed registry that keeps
// concurrent Runner processes on one filesystem from conflicting over
// shared workspace slots and branches. All durable state lives under a
// coordination directory, one JSON file per live RunnerInstance; the
// Registry itself holds only an in-process mutex around that IO.
package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kiln-run/runner/internal/domain"
)

const defaultHeartbeatTimeout = 300 * time.Second

// Registry guards filesystem access to the coordination directory with
// an in-process mutex; every exported method acquires it.
type Registry struct {
	dir               string
	maxParallel       int
	heartbeatTimeout  time.Duration
	nowFunc           func() time.Time

	mu sync.Mutex
}

// Config configures a Registry.
type Config struct {
	CoordinationDir  string
	MaxParallel      int // 0 means unbounded
	HeartbeatTimeout time.Duration
}

// NewRegistry constructs a Registry rooted at cfg.CoordinationDir.
func NewRegistry(cfg Config) *Registry {
	timeout := cfg.HeartbeatTimeout
	if timeout <= 0 {
		timeout = defaultHeartbeatTimeout
	}
	return &Registry{
		dir:              cfg.CoordinationDir,
		maxParallel:      cfg.MaxParallel,
		heartbeatTimeout: timeout,
		nowFunc:          time.Now,
	}
}

func (r *Registry) recordPath(runnerID string) string {
	return filepath.Join(r.dir, runnerID+".json")
}

// Register sweeps stale records, then admits a new RunnerInstance if
// the live count is under max_parallel_runners and no other live
// record already claims workspacePath. Returns false if admission was
// refused.
func (r *Registry) Register(runnerID, taskID, specName, workspacePath string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return false, fmt.Errorf("create coordination dir: %w", err)
	}

	live, err := r.sweepLocked()
	if err != nil {
		return false, err
	}

	if r.maxParallel > 0 && len(live) >= r.maxParallel {
		return false, nil
	}

	for _, inst := range live {
		if inst.WorkspacePath == workspacePath {
			return false, nil
		}
	}

	now := r.nowFunc()
	inst := domain.RunnerInstance{
		RunnerID:      runnerID,
		TaskID:        taskID,
		SpecName:      specName,
		WorkspacePath: workspacePath,
		StartTime:     now,
		LastHeartbeat: now,
	}

	if err := r.writeLocked(inst); err != nil {
		return false, err
	}

	return true, nil
}

// Unregister deletes runnerID's record file. Missing files are not an
// error.
func (r *Registry) Unregister(runnerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.recordPath(runnerID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unregister %s: %w", runnerID, err)
	}
	return nil
}

// Heartbeat refreshes runnerID's last_heartbeat. A no-op if the record
// is gone.
func (r *Registry) Heartbeat(runnerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok, err := r.readLocked(runnerID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	inst.LastHeartbeat = r.nowFunc()
	return r.writeLocked(inst)
}

// UpdateResources replaces runnerID's files_locked and/or
// branches_used sets; a nil slice leaves the corresponding set
// untouched.
func (r *Registry) UpdateResources(runnerID string, files, branches []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok, err := r.readLocked(runnerID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if files != nil {
		inst.FilesLocked = files
	}
	if branches != nil {
		inst.BranchesUsed = branches
	}
	return r.writeLocked(inst)
}

// ConcurrentCount returns the number of currently live records, after
// sweeping stale ones.
func (r *Registry) ConcurrentCount() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live, err := r.sweepLocked()
	if err != nil {
		return 0, err
	}
	return len(live), nil
}

// WaitTime estimates how long a caller should expect to wait when at
// capacity: the oldest active runner's elapsed time subtracted from a
// 1800s assumed ceiling, floored at zero. Returns 0 when under capacity.
func (r *Registry) WaitTime() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live, err := r.sweepLocked()
	if err != nil {
		return 0, err
	}

	if r.maxParallel <= 0 || len(live) < r.maxParallel {
		return 0, nil
	}

	oldest := live[0]
	for _, inst := range live[1:] {
		if inst.StartTime.Before(oldest.StartTime) {
			oldest = inst
		}
	}

	elapsed := r.nowFunc().Sub(oldest.StartTime)
	remaining := 1800*time.Second - elapsed
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (r *Registry) writeLocked(inst domain.RunnerInstance) error {
	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runner instance: %w", err)
	}

	path := r.recordPath(inst.RunnerID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write runner instance: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename runner instance: %w", err)
	}
	return nil
}

func (r *Registry) readLocked(runnerID string) (domain.RunnerInstance, bool, error) {
	data, err := os.ReadFile(r.recordPath(runnerID))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RunnerInstance{}, false, nil
		}
		return domain.RunnerInstance{}, false, fmt.Errorf("read runner instance %s: %w", runnerID, err)
	}

	var inst domain.RunnerInstance
	if err := json.Unmarshal(data, &inst); err != nil {
		return domain.RunnerInstance{}, false, fmt.Errorf("parse runner instance %s: %w", runnerID, err)
	}
	return inst, true, nil
}

// sweepLocked removes any record whose last_heartbeat is older than
// heartbeat_timeout and returns the remaining live instances. Must be
// called with r.mu held.
func (r *Registry) sweepLocked() ([]domain.RunnerInstance, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read coordination dir: %w", err)
	}

	now := r.nowFunc()
	var live []domain.RunnerInstance

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		runnerID := entry.Name()[:len(entry.Name())-len(".json")]
		inst, ok, err := r.readLocked(runnerID)
		if err != nil || !ok {
			continue
		}

		if now.Sub(inst.LastHeartbeat) > r.heartbeatTimeout {
			_ = os.Remove(r.recordPath(runnerID))
			continue
		}

		live = append(live, inst)
	}

	return live, nil
}
