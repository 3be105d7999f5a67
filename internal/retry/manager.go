package retry

import (
	"sync"
	"time"

	"github.com/kiln-run/runner/internal/domain"
)

// Manager tracks task-class retry state (spec §5's task-class ladder,
// §10.4) across failed dispatch attempts for a task. It is purely
// in-memory bookkeeping; the dispatcher decides whether to requeue.
type Manager struct {
	policy Policy

	mu    sync.Mutex
	tasks map[string]*domain.RetryInfo
}

// NewManager constructs a Manager over policy (normally TaskDefaults()).
func NewManager(policy Policy) *Manager {
	return &Manager{
		policy: policy,
		tasks:  make(map[string]*domain.RetryInfo),
	}
}

// RecordFailure bumps a task's retry_count and computes next_eligible_at
// from the task-class backoff ladder. It returns the updated RetryInfo.
func (m *Manager) RecordFailure(taskID, reason string, now time.Time) domain.RetryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.tasks[taskID]
	if !ok {
		info = &domain.RetryInfo{TaskID: taskID}
		m.tasks[taskID] = info
	}

	info.RetryCount++
	info.LastAttemptAt = now
	info.LastFailureReason = reason
	info.NextEligibleAt = now.Add(m.policy.Delay(info.RetryCount - 1))

	return *info
}

// RecordSuccess clears retry bookkeeping for taskID.
func (m *Manager) RecordSuccess(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
}

// Eligible reports whether taskID may be attempted again at now: either
// it has never failed, or its next_eligible_at has passed and it has
// not yet reached the policy's MaxRetries.
func (m *Manager) Eligible(taskID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.tasks[taskID]
	if !ok {
		return true
	}

	if info.RetryCount >= m.policy.MaxRetries {
		return false
	}

	return !now.Before(info.NextEligibleAt)
}

// Exhausted reports whether taskID has permanently failed: its
// retry_count has reached the policy's max attempts.
func (m *Manager) Exhausted(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	return info.RetryCount >= m.policy.MaxRetries
}

// Info returns a copy of the current RetryInfo for taskID, if any.
func (m *Manager) Info(taskID string) (domain.RetryInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.tasks[taskID]
	if !ok {
		return domain.RetryInfo{}, false
	}
	return *info, true
}
