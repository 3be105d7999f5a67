package coordinator

import (
	"context"
	"log/slog"
	"time"
)

const defaultHeartbeatInterval = 30 * time.Second

// Session wraps one registered RunnerInstance's lifetime: it
// auto-heartbeats at a configured interval and guarantees Unregister
// on scope exit, even on abnormal termination within the process
// (the caller's defer runs Close from a recover'd panic path same as
// any other deferred cleanup).
type Session struct {
	registry *Registry
	runnerID string
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Begin registers runnerID and, if admitted, starts its heartbeat
// loop. ok is false if registration was refused (at capacity, or the
// workspace slot is already claimed), in which case no Session is
// returned and no heartbeat runs.
func Begin(ctx context.Context, registry *Registry, runnerID, taskID, specName, workspacePath string, heartbeatInterval time.Duration, logger *slog.Logger) (*Session, bool, error) {
	admitted, err := registry.Register(runnerID, taskID, specName, workspacePath)
	if err != nil || !admitted {
		return nil, admitted, err
	}

	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{registry: registry, runnerID: runnerID, logger: logger, cancel: cancel, done: make(chan struct{})}

	go s.heartbeatLoop(sessionCtx, heartbeatInterval)

	return s, true, nil
}

func (s *Session) heartbeatLoop(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.registry.Heartbeat(s.runnerID); err != nil {
				s.logger.Warn("coordinator heartbeat failed", "runner_id", s.runnerID, "error", err)
			}
		}
	}
}

// Close stops the heartbeat loop and unregisters the runner. Safe to
// call from a defer.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return s.registry.Unregister(s.runnerID)
}
