// Package workspace prepares, commits, diffs, pushes, and rolls back a
// task's git workspace. Every operation is state-free: callers carry a
// domain.Workspace value between calls.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandTimeout bounds every subprocess invocation a Manager makes.
const CommandTimeout = 2 * time.Minute

// runGit runs git with args inside dir, returning its trimmed stdout and
// using its trimmed stderr as the error message, under a per-call timeout and a sanitized environment
// carrying only PATH, HOME, and the GIT_* variables the caller supplies.
func runGit(ctx context.Context, dir string, env []string, args ...string) (stdout string, err error) {
	callCtx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "git", args...)
	cmd.Dir = dir
	cmd.Env = sanitizedEnv(env)

	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if runErr := cmd.Run(); runErr != nil {
		msg := strings.TrimSpace(errBuf.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}

	return strings.TrimSpace(out.String()), nil
}

// sanitizedEnv keeps PATH/HOME from the process environment and layers
// the caller-supplied GIT_* overrides (e.g. GIT_ASKPASS, a token-bearing
// credential helper) on top, never inheriting the full ambient
// environment a subprocess might otherwise see.
func sanitizedEnv(extra []string) []string {
	base := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	return append(base, extra...)
}
