package orchestrator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kiln-run/runner/internal/domain"
)

// maxRelatedFileBytes is the per-file content cap from §4.7.3; content
// beyond this is truncated with an explicit marker.
const maxRelatedFileBytes = 100 * 1024

// maxTreeDepth bounds the workspace tree section so the prompt stays
// proportional to project size rather than enumerating every file.
const maxTreeDepth = 4

// excludedTreeDirs are skipped entirely when walking the workspace
// tree: VCS metadata, dependency/build caches, and output directories.
var excludedTreeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"bin":          true,
	".pytest_cache": true,
}

// buildPrompt composes the LLM prompt for task, in the fixed section
// order from §4.7.3.
func buildPrompt(task domain.TaskContext, workspacePath string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task: %s\n\n", task.Title)
	fmt.Fprintf(&b, "%s\n\n", task.Description)

	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance criteria\n\n")
		for i, criterion := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "%d. %s\n", i+1, criterion)
		}
		b.WriteString("\n")
	}

	if len(task.Dependencies) > 0 {
		b.WriteString("## Completed dependencies\n\n")
		for _, dep := range task.Dependencies {
			fmt.Fprintf(&b, "- %s\n", dep)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Workspace tree\n\n")
	b.WriteString(renderWorkspaceTree(workspacePath))
	b.WriteString("\n")

	if len(task.RelatedFiles) > 0 {
		b.WriteString("## Related files\n\n")
		for _, rel := range task.RelatedFiles {
			fmt.Fprintf(&b, "### %s\n\n", rel)
			b.WriteString(readTruncated(filepath.Join(workspacePath, rel)))
			b.WriteString("\n\n")
		}
	}

	b.WriteString("## Technical context\n\n")
	if task.RequiredSkill != "" {
		fmt.Fprintf(&b, "- required_skill: %s\n", task.RequiredSkill)
	}
	if task.Complexity != "" {
		fmt.Fprintf(&b, "- complexity: %s\n", task.Complexity)
	}
	fmt.Fprintf(&b, "- spec_name: %s\n", task.SpecName)
	for _, key := range sortedKeys(task.Metadata) {
		fmt.Fprintf(&b, "- %s: %v\n", key, task.Metadata[key])
	}
	b.WriteString("\n")

	b.WriteString("## Response format\n\n")
	b.WriteString("Respond with a single JSON object of the exact shape:\n\n")
	b.WriteString(`{"code_changes": [{"file_path": "...", "operation": "create|modify|delete", "content": "..."}], "explanation": "..."}`)
	b.WriteString("\n\nNo text outside the JSON object.\n")

	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderWorkspaceTree walks root up to maxTreeDepth, skipping dotfiles
// and excludedTreeDirs, rendering one indented line per entry.
func renderWorkspaceTree(root string) string {
	var b strings.Builder

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") || excludedTreeDirs[name] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if depth > maxTreeDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		indent := strings.Repeat("  ", depth-1)
		suffix := ""
		if d.IsDir() {
			suffix = "/"
		}
		fmt.Fprintf(&b, "%s%s%s\n", indent, name, suffix)
		return nil
	})
	if err != nil {
		return "(unable to read workspace tree)\n"
	}

	if b.Len() == 0 {
		return "(empty)\n"
	}
	return b.String()
}

// readTruncated reads path, capping content at maxRelatedFileBytes and
// appending an explicit truncation marker when the cap is hit.
func readTruncated(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("(unable to read %s: %v)", path, err)
	}

	if len(data) <= maxRelatedFileBytes {
		return string(data)
	}
	return string(data[:maxRelatedFileBytes]) + "\n...[truncated, file exceeds 100KB]"
}
