package domain

import "strings"

// TaskContext is the immutable input describing one unit of work handed
// to a Runner by the dispatcher. Once constructed it is never mutated;
// the Orchestrator only reads from it.
type TaskContext struct {
	// TaskID identifies this task across retries and across the dispatcher.
	TaskID string `json:"task_id"`

	// SpecName names the spec this task implements, used in the commit
	// message and in log enrichment.
	SpecName string `json:"spec_name"`

	// Title is the human summary, used verbatim in the commit message.
	Title string `json:"title"`

	// Description is the free-form task description fed to the LLM prompt.
	Description string `json:"description"`

	// AcceptanceCriteria is an ordered list rendered as a numbered list
	// in the LLM prompt.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`

	// Dependencies lists prerequisite task titles/ids already completed;
	// included in the prompt when non-empty.
	Dependencies []string `json:"dependencies,omitempty"`

	// BranchName is the target source-control branch. Must begin with
	// "feature/" or "task/"; enforced by the Permission Gate at push time.
	BranchName string `json:"branch_name"`

	// SlotPath is the pre-allocated workspace filesystem directory.
	SlotPath string `json:"slot_path"`

	// SlotID is the opaque identifier of the allocated slot.
	SlotID string `json:"slot_id"`

	// PlaybookPath optionally points at a YAML playbook to run instead of
	// ecosystem-detected default test commands; ignored when TestCommands
	// is non-empty.
	PlaybookPath string `json:"playbook_path,omitempty"`

	// TestCommands, when non-empty, are run verbatim in phase 3 instead of
	// ecosystem auto-detection.
	TestCommands []string `json:"test_commands,omitempty"`

	// FailFast stops phase 3 at the first failing command when true.
	FailFast bool `json:"fail_fast"`

	// TimeoutSeconds is the wall-clock ceiling for the whole run.
	TimeoutSeconds int `json:"timeout_seconds"`

	// Complexity is a coarse tag ("small", "medium", "large") surfaced in
	// the LLM prompt's technical-context block.
	Complexity string `json:"complexity,omitempty"`

	// RequireReview flags that a human should review before merge; carried
	// through to artifacts/events, not enforced by this module.
	RequireReview bool `json:"require_review,omitempty"`

	// RelatedFiles are workspace-relative paths whose content is inlined
	// into the LLM prompt (each truncated to 100KB).
	RelatedFiles []string `json:"related_files,omitempty"`

	// RequiredSkill is surfaced in the LLM prompt's technical-context block.
	RequiredSkill string `json:"required_skill,omitempty"`

	// Metadata is an opaque bag of extra technical-context entries.
	Metadata map[string]any `json:"metadata,omitempty"`

	// ExecutionMode selects how phase-3 commands run. Empty defaults to
	// ExecutionModeLocalProcess; only that mode is actually executed (see
	// SPEC_FULL.md §10.1).
	ExecutionMode ExecutionMode `json:"execution_mode,omitempty"`
}

// Validate checks the invariants from spec §3. It never mutates fields
// and never touches the filesystem beyond stating SlotPath.
func (t *TaskContext) Validate(slotExists func(path string) bool) error {
	switch {
	case strings.TrimSpace(t.TaskID) == "":
		return NewRunnerError(KindContextInvalid, "task_id is required", nil)
	case strings.TrimSpace(t.SpecName) == "":
		return NewRunnerError(KindContextInvalid, "spec_name is required", nil)
	case strings.TrimSpace(t.Title) == "":
		return NewRunnerError(KindContextInvalid, "title is required", nil)
	case strings.TrimSpace(t.Description) == "":
		return NewRunnerError(KindContextInvalid, "description is required", nil)
	case strings.TrimSpace(t.SlotID) == "":
		return NewRunnerError(KindContextInvalid, "slot_id is required", nil)
	case strings.TrimSpace(t.BranchName) == "":
		return NewRunnerError(KindContextInvalid, "branch_name is required", nil)
	case strings.TrimSpace(t.SlotPath) == "":
		return NewRunnerError(KindContextInvalid, "slot_path is required", nil)
	case t.TimeoutSeconds <= 0:
		return NewRunnerError(KindContextInvalid, "timeout_seconds must be positive", nil)
	}

	if slotExists != nil && !slotExists(t.SlotPath) {
		return NewRunnerError(KindContextInvalid, "slot_path does not exist or is not a directory", nil)
	}

	mode := t.ExecutionMode
	if mode == "" {
		mode = ExecutionModeLocalProcess
	}
	if mode != ExecutionModeLocalProcess {
		return NewRunnerError(KindContextInvalid, "execution_mode "+mode.String()+" is not supported", ErrExecutionModeUnsupported)
	}

	return nil
}

// Workspace is the filesystem realization of one task: a checked-out
// branch diverged from a base branch, inside the pre-allocated slot.
type Workspace struct {
	// Path is the slot's filesystem directory.
	Path string `json:"path"`

	// BranchName is the branch checked out for this task.
	BranchName string `json:"branch_name"`

	// BaseBranch is the branch BranchName diverged from.
	BaseBranch string `json:"base_branch"`
}
