package domain

import "time"

// ChangeOperation is the discriminator for one LLM-produced file edit.
type ChangeOperation string

const (
	ChangeCreate ChangeOperation = "create"
	ChangeModify ChangeOperation = "modify"
	ChangeDelete ChangeOperation = "delete"
)

// CodeChange is one file-level edit returned by the LLM driver.
type CodeChange struct {
	FilePath  string          `json:"file_path"`
	Operation ChangeOperation `json:"operation"`
	Content   string          `json:"content"`
}

// ImplementationResult is the phase-2 outcome: the change set applied to
// the workspace plus the LLM's bookkeeping.
type ImplementationResult struct {
	Success         bool         `json:"success"`
	ChangesApplied  []CodeChange `json:"changes_applied"`
	Explanation     string       `json:"explanation,omitempty"`
	Model           string       `json:"model,omitempty"`
	TokensUsed      int          `json:"tokens_used,omitempty"`
	DurationSeconds float64      `json:"duration_seconds"`
	Error           string       `json:"error,omitempty"`
}

// SingleTestResult is one executed test/playbook-step outcome. A step
// whose condition evaluates false is never run: it reports Skipped
// rather than Passed, so aggregate pass/fail counts don't silently
// count a condition-false step as a pass.
type SingleTestResult struct {
	Name            string  `json:"name"`
	Passed          bool    `json:"passed"`
	Skipped         bool    `json:"skipped,omitempty"`
	Output          string  `json:"output,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// TestResult is the phase-3 aggregate outcome.
type TestResult struct {
	Success         bool               `json:"success"`
	Results         []SingleTestResult `json:"results"`
	DurationSeconds float64            `json:"duration_seconds"`
	Error           string             `json:"error,omitempty"`
}

// PushResult is the phase-4 push outcome.
type PushResult struct {
	Success    bool   `json:"success"`
	Branch     string `json:"branch"`
	CommitHash string `json:"commit_hash"`
	RetryCount int    `json:"retry_count"`
}

// ArtifactType discriminates uploaded artifact kinds.
type ArtifactType string

const (
	ArtifactDiff ArtifactType = "diff"
	ArtifactLog  ArtifactType = "log"
	ArtifactTest ArtifactType = "test"
)

// Artifact is one uploaded execution artifact.
type Artifact struct {
	Type       ArtifactType   `json:"type"`
	URI        string         `json:"uri"`
	SizeBytes  int64          `json:"size_bytes"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RunnerResult is the aggregate Run() outcome.
type RunnerResult struct {
	Success            bool                   `json:"success"`
	Error              string                 `json:"error,omitempty"`
	ErrorKind          Kind                   `json:"error_kind,omitempty"`
	TaskID             string                 `json:"task_id"`
	WorkspacePath      string                 `json:"workspace_path,omitempty"`
	ConcurrentRunners  int                    `json:"concurrent_runners"`
	Implementation     *ImplementationResult  `json:"implementation,omitempty"`
	Test               *TestResult            `json:"test,omitempty"`
	Push               *PushResult            `json:"push,omitempty"`
	Artifacts          []Artifact             `json:"artifacts,omitempty"`
	DurationSeconds    float64                `json:"duration_seconds"`
}

// RunnerStateSnapshot is the persistable projection of a Runner's current
// state, one file per runner under the state directory.
type RunnerStateSnapshot struct {
	RunnerID      string         `json:"runner_id"`
	State         RunnerState    `json:"state"`
	TaskID        string         `json:"task_id,omitempty"`
	SpecName      string         `json:"spec_name,omitempty"`
	StartTime     *time.Time     `json:"start_time,omitempty"`
	LastUpdated   time.Time      `json:"last_updated"`
	WorkspacePath string         `json:"workspace_path,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RunnerInstance is the coordinator's live-registry record for one Runner.
type RunnerInstance struct {
	RunnerID      string    `json:"runner_id"`
	TaskID        string    `json:"task_id"`
	SpecName      string    `json:"spec_name"`
	WorkspacePath string    `json:"workspace_path"`
	StartTime     time.Time `json:"start_time"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	FilesLocked   []string  `json:"files_locked,omitempty"`
	BranchesUsed  []string  `json:"branches_used,omitempty"`
}

// RetryInfo is the task-level (dispatcher-driven) retry bookkeeping record.
type RetryInfo struct {
	TaskID            string    `json:"task_id"`
	RetryCount        int       `json:"retry_count"`
	LastAttemptAt     time.Time `json:"last_attempt_at"`
	NextEligibleAt    time.Time `json:"next_eligible_at"`
	LastFailureReason string    `json:"last_failure_reason,omitempty"`
}
