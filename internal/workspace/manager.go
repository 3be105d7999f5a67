package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiln-run/runner/internal/domain"
	"github.com/kiln-run/runner/internal/retry"
)

// Manager is a state-free helper over the git subprocess wrapper,
// parameterized by a retry.Policy (normally retry.NetworkDefaults())
// for push retries.
type Manager struct {
	pushPolicy retry.Policy
	gitEnv     []string
}

// NewManager constructs a Manager. gitEnv carries GIT_*-prefixed
// overrides (credential helpers, askpass) layered onto every git
// subprocess invocation.
func NewManager(pushPolicy retry.Policy, gitEnv []string) *Manager {
	return &Manager{pushPolicy: pushPolicy, gitEnv: gitEnv}
}

// Prepare runs the VCS sequence to stand up a task's branch: checkout
// base, fetch remote, rebase onto origin/base, create and check out
// branchName. Any step failure raises WorkspacePrep; the caller must
// still invoke Rollback to restore the slot.
func (m *Manager) Prepare(ctx context.Context, slotPath, branchName, baseBranch string) (domain.Workspace, error) {
	if baseBranch == "" {
		baseBranch = "main"
	}

	steps := [][]string{
		{"checkout", baseBranch},
		{"fetch", "origin"},
		{"rebase", "origin/" + baseBranch},
		{"checkout", "-b", branchName},
	}

	for _, args := range steps {
		if _, err := runGit(ctx, slotPath, m.gitEnv, args...); err != nil {
			return domain.Workspace{}, domain.NewRunnerError(domain.KindWorkspacePrep,
				fmt.Sprintf("preparing workspace at %s", slotPath), err)
		}
	}

	return domain.Workspace{Path: slotPath, BranchName: branchName, BaseBranch: baseBranch}, nil
}

// CommitChanges stages all changes and commits with message, returning
// the new HEAD hash. An empty change set is not an error at this layer.
func (m *Manager) CommitChanges(ctx context.Context, ws domain.Workspace, message string) (string, error) {
	if _, err := runGit(ctx, ws.Path, m.gitEnv, "add", "-A"); err != nil {
		return "", domain.NewRunnerError(domain.KindWorkspacePrep, "staging changes", err)
	}

	if _, err := runGit(ctx, ws.Path, m.gitEnv, "commit", "--allow-empty", "-m", message); err != nil {
		return "", domain.NewRunnerError(domain.KindWorkspacePrep, "committing changes", err)
	}

	hash, err := runGit(ctx, ws.Path, m.gitEnv, "rev-parse", "HEAD")
	if err != nil {
		return "", domain.NewRunnerError(domain.KindWorkspacePrep, "reading commit hash", err)
	}

	return hash, nil
}

// GetDiff returns the unified diff between current HEAD and
// origin/<base_branch>.
func (m *Manager) GetDiff(ctx context.Context, ws domain.Workspace) (string, error) {
	diff, err := runGit(ctx, ws.Path, m.gitEnv, "diff", "origin/"+ws.BaseBranch+"...HEAD")
	if err != nil {
		return "", domain.NewRunnerError(domain.KindWorkspacePrep, "computing diff", err)
	}
	return diff, nil
}

// PushBranch pushes branchName with upstream tracking, retrying
// transient failures under the Manager's push policy. A successful
// push reports how many retries it took; after exhausting attempts it
// raises PushFailed with the last remote message.
func (m *Manager) PushBranch(ctx context.Context, ws domain.Workspace, branchName string) (domain.PushResult, error) {
	result, err := retry.Do(ctx, m.pushPolicy, retry.AlwaysRetry, func(ctx context.Context, attempt int) error {
		_, err := runGit(ctx, ws.Path, m.gitEnv, "push", "--set-upstream", "origin", branchName)
		return err
	})

	if err != nil {
		return domain.PushResult{}, domain.NewRunnerError(domain.KindPushFailed,
			strings.TrimSpace(err.Error()), err)
	}

	hash, hashErr := runGit(ctx, ws.Path, m.gitEnv, "rev-parse", "HEAD")
	if hashErr != nil {
		hash = ""
	}

	return domain.PushResult{
		Success:    true,
		Branch:     branchName,
		CommitHash: hash,
		RetryCount: result.Attempts,
	}, nil
}

// Rollback hard resets to origin/<base_branch> and cleans untracked
// files, restoring the slot for reuse.
func (m *Manager) Rollback(ctx context.Context, ws domain.Workspace) error {
	if _, err := runGit(ctx, ws.Path, m.gitEnv, "reset", "--hard", "origin/"+ws.BaseBranch); err != nil {
		return domain.NewRunnerError(domain.KindWorkspacePrep, "rolling back workspace", err)
	}
	if _, err := runGit(ctx, ws.Path, m.gitEnv, "clean", "-fd"); err != nil {
		return domain.NewRunnerError(domain.KindWorkspacePrep, "cleaning untracked files", err)
	}
	return nil
}
