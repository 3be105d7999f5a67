package coordinator

import "fmt"

// DetectConflicts intersects files and branches against every other
// live record's locked sets, returning human-readable conflict
// descriptions. It never blocks; callers decide whether to proceed.
func (r *Registry) DetectConflicts(runnerID string, files, branches []string) ([]string, error) {
	r.mu.Lock()
	live, err := r.sweepLocked()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	fileSet := toSet(files)
	branchSet := toSet(branches)

	var conflicts []string
	for _, inst := range live {
		if inst.RunnerID == runnerID {
			continue
		}

		for _, f := range inst.FilesLocked {
			if fileSet[f] {
				conflicts = append(conflicts, fmt.Sprintf("file %q also locked by runner %s (task %s)", f, inst.RunnerID, inst.TaskID))
			}
		}
		for _, b := range inst.BranchesUsed {
			if branchSet[b] {
				conflicts = append(conflicts, fmt.Sprintf("branch %q also in use by runner %s (task %s)", b, inst.RunnerID, inst.TaskID))
			}
		}
	}

	return conflicts, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
