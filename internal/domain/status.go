package domain

import "errors"

// ErrExecutionModeUnsupported is wrapped into the KindContextInvalid
// error TaskContext.Validate raises for any ExecutionMode other than
// ExecutionModeLocalProcess.
var ErrExecutionModeUnsupported = errors.New("execution mode not supported")

// RunnerState is the lifecycle state of a single Runner instance.
//
// Allowed transitions:
//
//	Idle → Running
//	Running → {Completed, Failed}
//	{Completed, Failed} → Idle (reset)
//
// All other transitions are rejected at runtime by the orchestrator's
// state machine.
type RunnerState string

const (
	// RunnerStateIdle is the state before a task has started, and after
	// a Completed/Failed runner has been reset for reuse.
	RunnerStateIdle RunnerState = "IDLE"

	// RunnerStateRunning is the state while a task's phases are in flight.
	RunnerStateRunning RunnerState = "RUNNING"

	// RunnerStateCompleted is the terminal success state.
	RunnerStateCompleted RunnerState = "COMPLETED"

	// RunnerStateFailed is the terminal failure state.
	RunnerStateFailed RunnerState = "FAILED"
)

// IsTerminal reports whether the state is Completed or Failed.
func (s RunnerState) IsTerminal() bool {
	switch s {
	case RunnerStateCompleted, RunnerStateFailed:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the allowed RunnerState DAG from spec §3.
var validTransitions = map[RunnerState]map[RunnerState]bool{
	RunnerStateIdle:      {RunnerStateRunning: true},
	RunnerStateRunning:   {RunnerStateCompleted: true, RunnerStateFailed: true},
	RunnerStateCompleted: {RunnerStateIdle: true},
	RunnerStateFailed:    {RunnerStateIdle: true},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s RunnerState) CanTransition(next RunnerState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// ExecutionMode selects how a task's commands run.
//
// Only ExecutionModeLocalProcess is fully supported by this module; the
// other two parse as valid values, but TaskContext.Validate rejects them
// with ErrExecutionModeUnsupported (see SPEC_FULL.md §10.1), so Run never
// starts such a task and no state snapshot records them.
type ExecutionMode string

const (
	// ExecutionModeLocalProcess runs git/test/playbook commands as
	// subprocesses of the Runner itself.
	ExecutionModeLocalProcess ExecutionMode = "local-process"

	// ExecutionModeDocker would run commands inside a container.
	ExecutionModeDocker ExecutionMode = "docker"

	// ExecutionModeKubernetes would run commands as a Kubernetes Job.
	ExecutionModeKubernetes ExecutionMode = "kubernetes"
)

// String returns the string form of the execution mode.
func (m ExecutionMode) String() string {
	return string(m)
}

// ParseExecutionMode parses a string into an ExecutionMode, defaulting to
// ExecutionModeLocalProcess for unrecognized values.
func ParseExecutionMode(s string) ExecutionMode {
	switch s {
	case "docker":
		return ExecutionModeDocker
	case "kubernetes":
		return ExecutionModeKubernetes
	default:
		return ExecutionModeLocalProcess
	}
}
