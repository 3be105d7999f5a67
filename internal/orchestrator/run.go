package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiln-run/runner/internal/artifactclient"
	"github.com/kiln-run/runner/internal/coordinator"
	"github.com/kiln-run/runner/internal/domain"
	"github.com/kiln-run/runner/internal/llmdriver"
	"github.com/kiln-run/runner/internal/monitor"
	"github.com/kiln-run/runner/internal/permission"
	"github.com/kiln-run/runner/internal/playbook"
	"github.com/kiln-run/runner/internal/registryclient"
)

const maxCoordinatorWait = 60 * time.Second

// runState carries the mutable bookkeeping one Run call accumulates
// across phases, so the failure path can upload whatever artifacts and
// report whatever status makes sense regardless of which phase raised.
type runState struct {
	task       domain.TaskContext
	gate       *permission.Gate
	workspace  domain.Workspace
	session    *coordinator.Session
	mon        *monitor.Monitor
	log        *runLog
	implResult *domain.ImplementationResult
	testResult *domain.TestResult
	pushResult *domain.PushResult
	artifacts  []domain.Artifact
	startTime  time.Time
}

// Run executes task through the six-phase protocol described in
// SPEC_FULL.md's Orchestrator component, returning a RunnerResult
// regardless of success or failure.
func (o *Orchestrator) Run(ctx context.Context, task domain.TaskContext) domain.RunnerResult {
	startTime := time.Now()

	// Step 1 — input validation. No state transition, no side effects.
	if err := task.Validate(func(path string) bool {
		info, statErr := os.Stat(path)
		return statErr == nil && info.IsDir()
	}); err != nil {
		return o.resultFromError(task, startTime, err)
	}

	// A terminal Orchestrator resets to Idle before taking the next task.
	if state := o.State(); state.IsTerminal() {
		_ = o.transition(domain.RunnerStateIdle, "", "", "")
	}

	rs := &runState{task: task, log: newRunLog(), startTime: startTime}
	rs.log.Printf("run started for task %s", task.TaskID)

	// Step 2 — parallel admission (degraded mode on any failure).
	if o.coordinatorReg != nil {
		o.admit(ctx, rs)
	}

	// Step 3 — transition to Running.
	executionMode := task.ExecutionMode
	if executionMode == "" {
		executionMode = domain.ExecutionModeLocalProcess
	}
	if err := o.transition(domain.RunnerStateRunning, task.TaskID, task.SpecName, executionMode); err != nil {
		return o.resultFromError(task, startTime, domain.NewRunnerError(domain.KindContextInvalid, err.Error(), nil))
	}

	// Step 4 — start Execution Monitor. runCtx carries the task's own
	// deadline (task start + timeout_seconds), so every blocking call
	// made with it — the LLM request, test commands, git push — aborts
	// near the deadline on its own rather than overrunning it until the
	// next phase-boundary Check(). cancelRun is also wired as the
	// Deadline's onExpire callback, so a Check() that observes expiry
	// first (e.g. between two near-instant phases) cancels runCtx too.
	deadline := startTime.Add(time.Duration(task.TimeoutSeconds) * time.Second)
	runCtx, cancelRun := context.WithDeadline(ctx, deadline)
	defer cancelRun()

	rs.mon = monitor.New(monitor.Config{
		TimeoutSeconds: task.TimeoutSeconds,
		Sampler: monitor.SamplerConfig{
			MaxMemoryMB:   float64(o.settings.MaxMemoryMB),
			MaxCPUPercent: o.settings.MaxCPUPercent,
		},
	}, startTime, cancelRun)
	rs.mon.Start(runCtx)

	result, err := o.runPhases(runCtx, rs)
	if err != nil {
		return o.fail(runCtx, rs, err)
	}
	return o.succeed(runCtx, rs, result)
}

// admit implements step 2: checks the coordinator's WaitTime, sleeps
// up to maxCoordinatorWait, then opens a coordination context.
// Registration failure is logged and the run proceeds in degraded mode.
func (o *Orchestrator) admit(ctx context.Context, rs *runState) {
	wait, err := o.coordinatorReg.WaitTime()
	if err != nil {
		o.logger.Warn("coordinator wait-time check failed, proceeding in degraded mode", "error", err)
		return
	}
	if wait > 0 {
		if wait > maxCoordinatorWait {
			wait = maxCoordinatorWait
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	session, admitted, err := coordinator.Begin(ctx, o.coordinatorReg, o.runnerID, rs.task.TaskID, rs.task.SpecName, rs.task.SlotPath, 0, o.logger)
	if err != nil || !admitted {
		o.logger.Warn("coordinator registration failed, proceeding in degraded mode", "error", err, "admitted", admitted)
		return
	}
	rs.session = session
}

// runPhases executes phases 1-6 in order, returning the aggregate
// RunnerResult on success or a *domain.RunnerError on the first
// failing phase.
func (o *Orchestrator) runPhases(ctx context.Context, rs *runState) (domain.RunnerResult, error) {
	if err := rs.mon.Check(); err != nil {
		return domain.RunnerResult{}, err
	}
	if err := o.phaseErr(ctx, o.phasePrepare(ctx, rs)); err != nil {
		return domain.RunnerResult{}, err
	}

	if err := rs.mon.Check(); err != nil {
		return domain.RunnerResult{}, err
	}
	if err := o.phaseErr(ctx, o.phaseImplement(ctx, rs)); err != nil {
		return domain.RunnerResult{}, err
	}

	if err := rs.mon.Check(); err != nil {
		return domain.RunnerResult{}, err
	}
	if err := o.phaseErr(ctx, o.phaseTest(ctx, rs)); err != nil {
		return domain.RunnerResult{}, err
	}

	if err := rs.mon.Check(); err != nil {
		return domain.RunnerResult{}, err
	}
	if err := o.phaseErr(ctx, o.phaseCommitAndPush(ctx, rs)); err != nil {
		return domain.RunnerResult{}, err
	}

	// Phase 5 — artifact upload is never fatal.
	o.phaseUploadArtifacts(ctx, rs)

	// Phase 6 — registry report is never fatal.
	o.phaseReportCompletion(ctx, rs)

	concurrent := 1
	if o.coordinatorReg != nil {
		if n, err := o.coordinatorReg.ConcurrentCount(); err == nil {
			concurrent = n
		}
	}

	return domain.RunnerResult{
		Success:           true,
		TaskID:            rs.task.TaskID,
		WorkspacePath:     rs.workspace.Path,
		ConcurrentRunners: concurrent,
		Implementation:    rs.implResult,
		Test:              rs.testResult,
		Push:              rs.pushResult,
		Artifacts:         rs.artifacts,
		DurationSeconds:   time.Since(rs.startTime).Seconds(),
	}, nil
}

// phaseErr reclassifies a phase error as KindTimeout when it was
// actually caused by runCtx's deadline expiring mid-call (e.g. an LLM
// request or test command cut short), rather than surfacing whatever
// generic cancellation error the underlying call returned.
func (o *Orchestrator) phaseErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return domain.NewRunnerError(domain.KindTimeout, "task exceeded its configured timeout", err)
	}
	return err
}

// phasePrepare is step 5: the Permission Gate validates the branch
// operation, the Workspace Manager prepares the checkout, and the
// coordinator (if active) is updated with the claimed branch.
func (o *Orchestrator) phasePrepare(ctx context.Context, rs *runState) error {
	rs.gate = permission.NewGate(rs.task.SlotPath)

	if err := rs.gate.CheckVCSOp(permission.VCSBranch, permission.VCSOptions{Branch: rs.task.BranchName}); err != nil {
		return err
	}

	ws, err := o.workspaceManager.Prepare(ctx, rs.task.SlotPath, rs.task.BranchName, "")
	if err != nil {
		rollbackWs := domain.Workspace{Path: rs.task.SlotPath, BranchName: rs.task.BranchName, BaseBranch: "main"}
		if rbErr := o.workspaceManager.Rollback(ctx, rollbackWs); rbErr != nil {
			o.logger.Warn("rollback after workspace prep failure also failed", "error", rbErr)
		}
		return err
	}
	rs.workspace = ws
	rs.log.Printf("workspace prepared at %s on branch %s", ws.Path, ws.BranchName)

	if o.coordinatorReg != nil {
		if err := o.coordinatorReg.UpdateResources(o.runnerID, nil, []string{rs.task.BranchName}); err != nil {
			o.logger.Warn("failed to update coordinator resources", "error", err)
		}
		conflicts, err := o.coordinatorReg.DetectConflicts(o.runnerID, nil, []string{rs.task.BranchName})
		if err != nil {
			o.logger.Warn("conflict detection failed", "error", err)
		}
		for _, c := range conflicts {
			o.logger.Warn("workspace conflict detected (non-fatal)", "conflict", c)
			rs.log.Printf("conflict: %s", c)
		}
	}

	return nil
}

// phaseImplement is step 6: build the LLM prompt, call GenerateCode,
// and apply every returned change to the workspace.
func (o *Orchestrator) phaseImplement(ctx context.Context, rs *runState) error {
	prompt := buildPrompt(rs.task, rs.workspace.Path)

	start := time.Now()
	resp, err := o.llm.GenerateCode(ctx, llmdriver.Request{
		Prompt:        prompt,
		WorkspacePath: rs.workspace.Path,
		MaxTokens:     o.settings.LLMMaxTokens,
	})
	duration := time.Since(start)

	if rs.mon != nil {
		rs.mon.Tracker.Record(monitor.ServiceCall{
			ServiceName: "llm",
			Operation:   "generate_code",
			Start:       start,
			End:         start.Add(duration),
			Success:     err == nil,
		})
	}

	if err != nil {
		rs.log.Printf("llm call failed: %v", err)
		return domain.NewRunnerError(domain.KindImplementation, "llm call failed", err)
	}

	if len(resp.CodeChanges) == 0 {
		return domain.NewRunnerError(domain.KindImplementation, "llm returned an empty change set", nil)
	}

	for _, change := range resp.CodeChanges {
		if err := o.applyChange(rs, change); err != nil {
			return err
		}
	}

	for _, change := range resp.CodeChanges {
		if change.Operation == domain.ChangeDelete {
			continue
		}
		abs := filepath.Join(rs.workspace.Path, change.FilePath)
		if _, err := os.Stat(abs); err != nil {
			return domain.NewRunnerError(domain.KindImplementation,
				fmt.Sprintf("change applied to %s but the path is missing afterward", change.FilePath), err)
		}
	}

	rs.implResult = &domain.ImplementationResult{
		Success:         true,
		ChangesApplied:  resp.CodeChanges,
		Explanation:     resp.Explanation,
		Model:           resp.Model,
		TokensUsed:      resp.TokensUsed,
		DurationSeconds: duration.Seconds(),
	}
	rs.log.Printf("applied %d code changes", len(resp.CodeChanges))

	return nil
}

func (o *Orchestrator) applyChange(rs *runState, change domain.CodeChange) error {
	abs := filepath.Join(rs.workspace.Path, change.FilePath)
	if err := rs.gate.CheckPath(abs, true); err != nil {
		return err
	}

	switch change.Operation {
	case domain.ChangeCreate, domain.ChangeModify:
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return domain.NewRunnerError(domain.KindImplementation, "creating parent directory for "+change.FilePath, err)
		}
		if err := os.WriteFile(abs, []byte(change.Content), 0o644); err != nil {
			return domain.NewRunnerError(domain.KindImplementation, "writing "+change.FilePath, err)
		}
	case domain.ChangeDelete:
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return domain.NewRunnerError(domain.KindImplementation, "deleting "+change.FilePath, err)
		}
	default:
		return domain.NewRunnerError(domain.KindImplementation, "unknown change operation: "+string(change.Operation), nil)
	}
	return nil
}

// phaseTest is step 7: run explicit test_commands, a named playbook,
// or an ecosystem-detected default, honoring fail_fast.
func (o *Orchestrator) phaseTest(ctx context.Context, rs *runState) error {
	start := time.Now()
	result := domain.TestResult{Success: true}

	switch {
	case len(rs.task.TestCommands) > 0:
		for _, command := range rs.task.TestCommands {
			if err := rs.gate.CheckCommand(command); err != nil {
				return err
			}
			single := o.runTestCommand(ctx, rs.workspace.Path, command)
			result.Results = append(result.Results, single)
			if !single.Passed {
				result.Success = false
				if rs.task.FailFast {
					goto done
				}
			}
		}

	case rs.task.PlaybookPath != "":
		pb, err := o.loadPlaybook(rs)
		if err != nil {
			return domain.NewRunnerError(domain.KindPlaybookExecution, "loading playbook", err)
		}
		for _, step := range pb.Steps {
			if err := rs.gate.CheckCommand(step.Command); err != nil {
				return err
			}
		}
		runner := playbook.NewRunner(rs.workspace.Path, o.logger)
		result = runner.Run(ctx, pb, playbook.Context{
			"task_id":   rs.task.TaskID,
			"spec_name": rs.task.SpecName,
		})

	default:
		if command, ok := detectTestCommand(rs.workspace.Path); ok {
			if err := rs.gate.CheckCommand(command); err != nil {
				return err
			}
			result.Results = append(result.Results, o.runTestCommand(ctx, rs.workspace.Path, command))
			result.Success = result.Results[0].Passed
		}
	}

done:
	result.DurationSeconds = time.Since(start).Seconds()
	rs.testResult = &result
	rs.log.Printf("tests completed, success=%t", result.Success)

	if !result.Success {
		return domain.NewRunnerError(domain.KindTestFailed, "one or more test commands failed", nil)
	}
	return nil
}

func (o *Orchestrator) loadPlaybook(rs *runState) (*playbook.Playbook, error) {
	path := rs.task.PlaybookPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(rs.workspace.Path, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return playbook.Parse(raw)
}

func (o *Orchestrator) runTestCommand(ctx context.Context, dir, command string) domain.SingleTestResult {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "sh", "-c", command)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()

	return domain.SingleTestResult{
		Name:            command,
		Passed:          err == nil,
		Output:          string(output),
		DurationSeconds: time.Since(start).Seconds(),
	}
}

// phaseCommitAndPush is step 8. The push validation runs before any
// commit is made, so a rejected branch leaves no local commit behind.
func (o *Orchestrator) phaseCommitAndPush(ctx context.Context, rs *runState) error {
	if err := rs.gate.CheckVCSOp(permission.VCSPush, permission.VCSOptions{Branch: rs.task.BranchName}); err != nil {
		return err
	}

	message := fmt.Sprintf("feat(%s): %s [Task %s]", rs.task.SpecName, rs.task.Title, rs.task.TaskID)
	if _, err := o.workspaceManager.CommitChanges(ctx, rs.workspace, message); err != nil {
		return err
	}

	pushResult, err := o.workspaceManager.PushBranch(ctx, rs.workspace, rs.task.BranchName)
	if err != nil {
		return err
	}
	rs.pushResult = &pushResult
	rs.log.Printf("pushed branch %s (retries=%d)", pushResult.Branch, pushResult.RetryCount)
	return nil
}

// phaseUploadArtifacts is step 9: diff, execution log, and test result
// JSON are uploaded best-effort. Failures here never fail the task.
func (o *Orchestrator) phaseUploadArtifacts(ctx context.Context, rs *runState) {
	if o.artifactClient == nil {
		return
	}

	if diff, err := o.workspaceManager.GetDiff(ctx, rs.workspace); err == nil && diff != "" {
		o.uploadArtifact(ctx, rs, "changes.diff", domain.ArtifactDiff, strings.NewReader(diff), int64(len(diff)))
	} else if err != nil {
		o.logger.Warn("computing diff for artifact upload failed", "error", err)
	}

	logText := rs.log.String()
	o.uploadArtifact(ctx, rs, "execution.log", domain.ArtifactLog, strings.NewReader(logText), int64(len(logText)))

	if rs.testResult != nil {
		data, err := json.Marshal(rs.testResult)
		if err == nil {
			o.uploadArtifact(ctx, rs, "test_result.json", domain.ArtifactTest, strings.NewReader(string(data)), int64(len(data)))
		}
	}
}

func (o *Orchestrator) uploadArtifact(ctx context.Context, rs *runState, filename string, artifactType domain.ArtifactType, content *strings.Reader, size int64) {
	uploaded, err := o.artifactClient.Upload(ctx, filename, string(artifactType), content, nil)
	if err != nil {
		o.logger.Warn("artifact upload failed", "filename", filename, "error", err)
		return
	}

	artifact := domain.Artifact{
		Type:      artifactType,
		URI:       uploaded.URI,
		SizeBytes: size,
		CreatedAt: time.Now(),
	}
	rs.artifacts = append(rs.artifacts, artifact)

	if o.registryClient == nil {
		return
	}
	err = o.registryClient.ReportArtifact(ctx, rs.task.TaskID, registryclient.ArtifactReport{
		Type:      string(artifact.Type),
		URI:       artifact.URI,
		SizeBytes: artifact.SizeBytes,
		CreatedAt: artifact.CreatedAt,
	})
	if err != nil {
		o.logger.Warn("reporting artifact to task registry failed", "filename", filename, "error", err)
	}
}

// phaseReportCompletion is step 10: registry updates are logged, never
// fatal.
func (o *Orchestrator) phaseReportCompletion(ctx context.Context, rs *runState) {
	if o.registryClient == nil {
		return
	}

	if err := o.registryClient.UpdateStatus(ctx, rs.task.TaskID, registryclient.StatusUpdate{
		Status:    "done",
		UpdatedAt: time.Now(),
	}); err != nil {
		o.logger.Warn("updating task registry status failed", "error", err)
	}

	branchURIs := make([]string, 0, len(rs.artifacts))
	for _, a := range rs.artifacts {
		branchURIs = append(branchURIs, a.URI)
	}

	if err := o.registryClient.PostEvent(ctx, rs.task.TaskID, registryclient.Event{
		EventType: "TaskCompleted",
		Data: map[string]any{
			"runner_id":     o.runnerID,
			"branch_name":   rs.task.BranchName,
			"artifact_uris": branchURIs,
		},
		Timestamp: time.Now(),
	}); err != nil {
		o.logger.Warn("posting TaskCompleted event failed", "error", err)
	}
}

// succeed finalizes a successful run: stop the Monitor, transition to
// Completed, and release shared resources.
func (o *Orchestrator) succeed(ctx context.Context, rs *runState, result domain.RunnerResult) domain.RunnerResult {
	rs.mon.Stop()
	_ = o.transition(domain.RunnerStateCompleted, rs.task.TaskID, rs.task.SpecName, "")
	o.recordHistory(ctx, rs, result)
	o.cleanup(rs)
	return result
}

// fail finalizes a failed run: best-effort error-log upload, a
// TaskFailed event, transition to Failed, and release shared resources.
func (o *Orchestrator) fail(ctx context.Context, rs *runState, cause error) domain.RunnerResult {
	kind, ok := domain.AsRunnerError(cause)
	if !ok {
		kind = domain.KindImplementation
	}

	rs.log.Printf("run failed: %s: %v", kind, cause)

	if o.artifactClient != nil {
		logText := rs.log.String()
		o.uploadArtifact(ctx, rs, "execution.log", domain.ArtifactLog, strings.NewReader(logText), int64(len(logText)))
	}

	if o.registryClient != nil {
		if err := o.registryClient.PostEvent(ctx, rs.task.TaskID, registryclient.Event{
			EventType: "TaskFailed",
			Data: map[string]any{
				"runner_id":  o.runnerID,
				"error_kind": string(kind),
				"error":      cause.Error(),
			},
			Timestamp: time.Now(),
		}); err != nil {
			o.logger.Warn("posting TaskFailed event failed", "error", err)
		}
	}

	if rs.mon != nil {
		rs.mon.Stop()
	}
	_ = o.transition(domain.RunnerStateFailed, rs.task.TaskID, rs.task.SpecName, "")

	result := domain.RunnerResult{
		Success:         false,
		Error:           cause.Error(),
		ErrorKind:       kind,
		TaskID:          rs.task.TaskID,
		WorkspacePath:   rs.workspace.Path,
		Implementation:  rs.implResult,
		Test:            rs.testResult,
		Push:            rs.pushResult,
		Artifacts:       rs.artifacts,
		DurationSeconds: time.Since(rs.startTime).Seconds(),
	}
	o.recordHistory(ctx, rs, result)
	o.cleanup(rs)

	return result
}

// recordHistory appends a run-history audit row, win or lose. A nil
// History collaborator (the default: no HISTORY_DB_URL configured)
// makes this a no-op.
func (o *Orchestrator) recordHistory(ctx context.Context, rs *runState, result domain.RunnerResult) {
	if o.history == nil {
		return
	}
	if err := o.history.Record(ctx, o.runnerID, rs.task.SpecName, result); err != nil {
		o.logger.Warn("recording run history failed", "error", err)
	}
}

// cleanup runs the "always" steps from §4.7.2: unregister from the
// coordinator and clear credentials. Safe to call even when the
// corresponding collaborator was never engaged.
func (o *Orchestrator) cleanup(rs *runState) {
	if rs.session != nil {
		if err := rs.session.Close(); err != nil {
			o.logger.Warn("coordinator session close failed", "error", err)
		}
	}
	if o.credentials != nil {
		o.credentials.Clear()
	}
}

// resultFromError builds the RunnerResult for a failure that occurs
// before any state transition (validation failures per step 1).
func (o *Orchestrator) resultFromError(task domain.TaskContext, startTime time.Time, err error) domain.RunnerResult {
	kind, ok := domain.AsRunnerError(err)
	if !ok {
		kind = domain.KindContextInvalid
	}
	return domain.RunnerResult{
		Success:         false,
		Error:           err.Error(),
		ErrorKind:       kind,
		TaskID:          task.TaskID,
		DurationSeconds: time.Since(startTime).Seconds(),
	}
}
