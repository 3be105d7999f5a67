// Package permission enforces the three checks every filesystem,
// source-control, and shell operation must pass before the Orchestrator
// lets it touch a workspace: path confinement, VCS allow-listing, and
// command deny-patterns.
package permission

import (
	"path/filepath"
	"strings"

	"github.com/kiln-run/runner/internal/domain"
)

// VCSOp is one allow-listed source-control operation.
type VCSOp string

const (
	VCSCheckout VCSOp = "checkout"
	VCSFetch    VCSOp = "fetch"
	VCSPull     VCSOp = "pull"
	VCSRebase   VCSOp = "rebase"
	VCSBranch   VCSOp = "branch"
	VCSCommit   VCSOp = "commit"
	VCSPush     VCSOp = "push"
	VCSDiff     VCSOp = "diff"
	VCSStatus   VCSOp = "status"
)

var allowedVCSOps = map[VCSOp]bool{
	VCSCheckout: true,
	VCSFetch:    true,
	VCSPull:     true,
	VCSRebase:   true,
	VCSBranch:   true,
	VCSCommit:   true,
	VCSPush:     true,
	VCSDiff:     true,
	VCSStatus:   true,
}

var allowedBranchPrefixes = []string{"feature/", "task/"}

// Gate scopes every check to a single workspace root.
type Gate struct {
	root string
}

// NewGate constructs a Gate confined to root, which must be an absolute
// path to the workspace slot.
func NewGate(root string) *Gate {
	return &Gate{root: filepath.Clean(root)}
}

// CheckPath resolves candidate to an absolute path and rejects it if it
// escapes the workspace root, or if it targets a .git path segment for
// a write/execute operation.
func (g *Gate) CheckPath(candidate string, write bool) error {
	abs := candidate
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.root, candidate)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(g.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return domain.NewRunnerError(domain.KindSecurityFailure,
			"path escapes workspace root: "+candidate, nil)
	}

	if write && containsGitSegment(abs) {
		return domain.NewRunnerError(domain.KindSecurityFailure,
			"write/execute targeting VCS metadata is not permitted: "+candidate, nil)
	}

	return nil
}

func containsGitSegment(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".git" {
			return true
		}
	}
	return false
}

// CheckVCSOp validates a source-control operation against the
// allow-list and the push/branch-specific rules.
func (g *Gate) CheckVCSOp(op VCSOp, opts VCSOptions) error {
	if !allowedVCSOps[op] {
		return domain.NewRunnerError(domain.KindSecurityFailure,
			"VCS operation not allow-listed: "+string(op), nil)
	}

	switch op {
	case VCSPush:
		if opts.Force {
			return domain.NewRunnerError(domain.KindSecurityFailure,
				"force push is not permitted", nil)
		}
		if !hasAllowedBranchPrefix(opts.Branch) {
			return domain.NewRunnerError(domain.KindSecurityFailure,
				"branch does not match an allowed prefix: "+opts.Branch, nil)
		}
	case VCSBranch:
		if opts.Delete {
			return domain.NewRunnerError(domain.KindSecurityFailure,
				"branch deletion is not permitted", nil)
		}
	}

	return nil
}

// VCSOptions carries the per-operation detail CheckVCSOp needs; only the
// fields relevant to the given op are consulted.
type VCSOptions struct {
	Branch string
	Force  bool
	Delete bool
}

func hasAllowedBranchPrefix(branch string) bool {
	for _, prefix := range allowedBranchPrefixes {
		if strings.HasPrefix(branch, prefix) {
			return true
		}
	}
	return false
}
