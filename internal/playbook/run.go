package playbook

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/kiln-run/runner/internal/domain"
)

// Runner executes a Playbook's steps in sequence inside a fixed
// workspace directory.
type Runner struct {
	WorkDir string
	Logger  *slog.Logger
}

// NewRunner constructs a Runner scoped to workDir.
func NewRunner(workDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{WorkDir: workDir, Logger: logger}
}

// Run executes every step of pb against ctx in order, honoring
// condition gating, ${name} substitution, per-step timeout and retry,
// and fail_fast.
func (r *Runner) Run(ctx context.Context, pb *Playbook, vars Context) domain.TestResult {
	start := time.Now()
	result := domain.TestResult{Success: true}

	for _, step := range pb.Steps {
		stepResult, stop := r.runStep(ctx, step, vars)
		result.Results = append(result.Results, stepResult)

		if !stepResult.Skipped && !stepResult.Passed {
			result.Success = false
		}
		if stop {
			break
		}
	}

	result.DurationSeconds = time.Since(start).Seconds()
	return result
}

// runStep evaluates one step's condition, substitutes variables,
// retries on nonzero exit up to retry_count times, and reports whether
// the Playbook should stop (fail_fast on a failing step).
func (r *Runner) runStep(ctx context.Context, step Step, vars Context) (result domain.SingleTestResult, stop bool) {
	start := time.Now()

	shouldRun, err := EvaluateCondition(step.Condition, vars)
	if err != nil {
		r.Logger.Warn("playbook condition failed to evaluate, running step per fail-open policy",
			"step", step.Name, "error", err)
		shouldRun = true
	}

	if !shouldRun {
		return domain.SingleTestResult{Name: step.Name, Skipped: true, DurationSeconds: time.Since(start).Seconds()}, false
	}

	command := Substitute(step.Command, vars, r.Logger)

	var lastOutput string
	var lastErr error
	attempts := step.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		lastOutput, lastErr = r.execOnce(ctx, command, step.TimeoutSeconds)
		if lastErr == nil {
			break
		}
	}

	passed := lastErr == nil
	if !passed && step.FailFast {
		stop = true
	}

	return domain.SingleTestResult{
		Name:            step.Name,
		Passed:          passed,
		Output:          lastOutput,
		DurationSeconds: time.Since(start).Seconds(),
	}, stop
}

func (r *Runner) execOnce(ctx context.Context, command string, timeoutSeconds int) (string, error) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultStepTimeoutSeconds
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "sh", "-c", command)
	cmd.Dir = r.WorkDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return out.String(), err
}
