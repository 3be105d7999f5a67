package domain

import (
	"errors"
	"testing"
)

func validTask() TaskContext {
	return TaskContext{
		TaskID:         "task-1",
		SpecName:       "demo-spec",
		Title:          "Add widget",
		Description:    "Add a widget to the dashboard",
		SlotID:         "slot-1",
		BranchName:     "feature/widget",
		SlotPath:       "/workspaces/slot-1",
		TimeoutSeconds: 600,
	}
}

func TestTaskContext_Validate_OK(t *testing.T) {
	task := validTask()
	if err := task.Validate(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTaskContext_Validate_RequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TaskContext)
	}{
		{"task_id", func(tc *TaskContext) { tc.TaskID = "" }},
		{"spec_name", func(tc *TaskContext) { tc.SpecName = "" }},
		{"title", func(tc *TaskContext) { tc.Title = "" }},
		{"description", func(tc *TaskContext) { tc.Description = "" }},
		{"slot_id", func(tc *TaskContext) { tc.SlotID = "" }},
		{"branch_name", func(tc *TaskContext) { tc.BranchName = "" }},
		{"slot_path", func(tc *TaskContext) { tc.SlotPath = "" }},
		{"timeout_seconds", func(tc *TaskContext) { tc.TimeoutSeconds = 0 }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			task := validTask()
			c.mutate(&task)
			err := task.Validate(nil)
			if err == nil {
				t.Fatalf("expected an error when %s is missing", c.name)
			}
			kind, ok := AsRunnerError(err)
			if !ok || kind != KindContextInvalid {
				t.Fatalf("expected KindContextInvalid, got %v", err)
			}
		})
	}
}

func TestTaskContext_Validate_SlotMustExist(t *testing.T) {
	task := validTask()
	err := task.Validate(func(path string) bool { return false })
	if err == nil {
		t.Fatal("expected an error for a nonexistent slot")
	}
}

func TestTaskContext_Validate_ExecutionModeDefaultsToLocalProcess(t *testing.T) {
	task := validTask()
	if err := task.Validate(nil); err != nil {
		t.Fatalf("empty execution_mode should default to local-process: %v", err)
	}
}

func TestTaskContext_Validate_ExecutionModeLocalProcessAllowed(t *testing.T) {
	task := validTask()
	task.ExecutionMode = ExecutionModeLocalProcess
	if err := task.Validate(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTaskContext_Validate_UnsupportedExecutionModeRejected(t *testing.T) {
	for _, mode := range []ExecutionMode{ExecutionModeDocker, ExecutionModeKubernetes} {
		task := validTask()
		task.ExecutionMode = mode
		err := task.Validate(nil)
		if err == nil {
			t.Fatalf("expected execution_mode %s to be rejected", mode)
		}
		if !errors.Is(err, ErrExecutionModeUnsupported) {
			t.Errorf("expected ErrExecutionModeUnsupported in the error chain, got %v", err)
		}
		kind, ok := AsRunnerError(err)
		if !ok || kind != KindContextInvalid {
			t.Errorf("expected KindContextInvalid, got %v", err)
		}
	}
}

func TestExecutionMode_ParseExecutionMode(t *testing.T) {
	cases := map[string]ExecutionMode{
		"docker":     ExecutionModeDocker,
		"kubernetes": ExecutionModeKubernetes,
		"":           ExecutionModeLocalProcess,
		"bogus":      ExecutionModeLocalProcess,
	}
	for input, want := range cases {
		if got := ParseExecutionMode(input); got != want {
			t.Errorf("ParseExecutionMode(%q) = %v, want %v", input, got, want)
		}
	}
}
