package monitor

import (
	"context"
	"time"

	"github.com/kiln-run/runner/internal/domain"
)

// Config configures the three sub-services a Monitor owns.
type Config struct {
	TimeoutSeconds int
	Sampler        SamplerConfig
}

// Monitor composes Deadline, Sampler, and Tracker behind the shared
// Start/Check/Stop lifecycle the Orchestrator drives at every phase
// boundary.
type Monitor struct {
	Deadline *Deadline
	Sampler  *Sampler
	Tracker  *Tracker

	cancel context.CancelFunc
}

// New constructs a Monitor from cfg, anchoring the deadline at start.
// onExpire (nilable) fires exactly once when the deadline is first
// observed to have passed — callers wire it to cancel the run's
// context so in-flight blocking calls abort near the deadline instead
// of only being caught at the next phase boundary.
func New(cfg Config, start time.Time, onExpire func()) *Monitor {
	return &Monitor{
		Deadline: NewDeadline(start, time.Duration(cfg.TimeoutSeconds)*time.Second, onExpire),
		Sampler:  NewSampler(cfg.Sampler),
		Tracker:  NewTracker(),
	}
}

// Start launches the Sampler's background goroutine under a
// monitor-owned context derived from ctx.
func (m *Monitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.Sampler.Start(runCtx)
}

// Stop halts the Sampler's background goroutine.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.Sampler.Stop()
}

// Check evaluates the Deadline and Sampler, raising Timeout with
// priority over ResourceLimit per spec §4.3. Returns nil if neither
// condition is tripped.
func (m *Monitor) Check() error {
	if m.Deadline.Check() {
		return domain.NewRunnerError(domain.KindTimeout, "task exceeded its configured timeout", nil)
	}

	summary := m.Sampler.Summary()
	if summary.LimitExceeded {
		return domain.NewRunnerError(domain.KindResourceLimit, summary.LimitReason, nil)
	}

	return nil
}
