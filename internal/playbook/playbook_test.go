package playbook

import (
	"context"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	raw := []byte(`
name: demo
steps:
  - name: run-tests
    command: go test ./...
  - name: lint
    command: golangci-lint run
    fail_fast: true
`)
	pb, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pb.Name != "demo" {
		t.Errorf("Name = %q", pb.Name)
	}
	if len(pb.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(pb.Steps))
	}
	if pb.Steps[0].TimeoutSeconds != defaultStepTimeoutSeconds {
		t.Errorf("TimeoutSeconds = %d, want default %d", pb.Steps[0].TimeoutSeconds, defaultStepTimeoutSeconds)
	}
}

func TestParse_RejectsMissingName(t *testing.T) {
	raw := []byte(`
steps:
  - name: a
    command: b
`)
	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected error for missing playbook name")
	}
}

func TestParse_RejectsEmptySteps(t *testing.T) {
	raw := []byte(`
name: demo
steps: []
`)
	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected error for empty steps")
	}
}

func TestParse_RejectsStepMissingCommand(t *testing.T) {
	raw := []byte(`
name: demo
steps:
  - name: broken
`)
	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected error for step with no command")
	}
}

func TestEvaluateCondition_Bare(t *testing.T) {
	ok, err := EvaluateCondition("true", nil)
	if err != nil || !ok {
		t.Errorf("true condition: ok=%v err=%v", ok, err)
	}
	ok, err = EvaluateCondition("false", nil)
	if err != nil || ok {
		t.Errorf("false condition: ok=%v err=%v", ok, err)
	}
	ok, err = EvaluateCondition("", nil)
	if err != nil || !ok {
		t.Errorf("empty condition should default true: ok=%v err=%v", ok, err)
	}
}

func TestEvaluateCondition_Comparison(t *testing.T) {
	ctx := Context{"complexity": "large", "retries": 2}

	ok, err := EvaluateCondition(`complexity == "large"`, ctx)
	if err != nil || !ok {
		t.Errorf("string comparison: ok=%v err=%v", ok, err)
	}

	ok, err = EvaluateCondition("retries > 1", ctx)
	if err != nil || !ok {
		t.Errorf("numeric comparison: ok=%v err=%v", ok, err)
	}

	ok, err = EvaluateCondition("retries <= 1", ctx)
	if err != nil || ok {
		t.Errorf("numeric comparison should be false: ok=%v err=%v", ok, err)
	}
}

func TestEvaluateCondition_LoneIdentifier(t *testing.T) {
	ctx := Context{"require_review": "yes", "skip": "0"}

	ok, err := EvaluateCondition("require_review", ctx)
	if err != nil || !ok {
		t.Errorf("expected require_review to be truthy: ok=%v err=%v", ok, err)
	}

	ok, err = EvaluateCondition("skip", ctx)
	if err != nil || ok {
		t.Errorf("expected skip=0 to be falsy: ok=%v err=%v", ok, err)
	}
}

func TestEvaluateCondition_UnknownVariableErrors(t *testing.T) {
	_, err := EvaluateCondition("missing", Context{})
	if err == nil {
		t.Fatal("expected error for unknown variable, caller should fail open")
	}
}

func TestSubstitute_ResolvedAndUnresolved(t *testing.T) {
	ctx := Context{"spec_name": "runner-core"}

	out := Substitute("echo building ${spec_name} for ${missing}", ctx, nil)
	want := "echo building runner-core for ${missing}"
	if out != want {
		t.Errorf("Substitute = %q, want %q", out, want)
	}
}

func TestRunner_Run_HappyPath(t *testing.T) {
	pb := &Playbook{
		Name: "demo",
		Steps: []Step{
			{Name: "echo", Command: "echo ${value}", TimeoutSeconds: 5},
		},
	}

	r := NewRunner(t.TempDir(), nil)
	result := r.Run(context.Background(), pb, Context{"value": "hi"})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.Results) != 1 || !result.Results[0].Passed {
		t.Fatalf("expected one passing step result, got %+v", result.Results)
	}
}

func TestRunner_Run_FailFastStopsRemainingSteps(t *testing.T) {
	pb := &Playbook{
		Name: "demo",
		Steps: []Step{
			{Name: "boom", Command: "exit 1", TimeoutSeconds: 5, FailFast: true},
			{Name: "never", Command: "echo should-not-run", TimeoutSeconds: 5},
		},
	}

	r := NewRunner(t.TempDir(), nil)
	result := r.Run(context.Background(), pb, Context{})

	if result.Success {
		t.Fatal("expected overall failure")
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected fail_fast to stop after the first step, got %d results", len(result.Results))
	}
}

func TestRunner_Run_ConditionSkipsStep(t *testing.T) {
	pb := &Playbook{
		Name: "demo",
		Steps: []Step{
			{Name: "conditional", Command: "exit 1", Condition: "false", TimeoutSeconds: 5},
		},
	}

	r := NewRunner(t.TempDir(), nil)
	result := r.Run(context.Background(), pb, Context{})

	if !result.Success {
		t.Fatalf("expected a skipped step not to fail the run, got %+v", result)
	}
	if len(result.Results) != 1 || !result.Results[0].Skipped || result.Results[0].Passed {
		t.Fatalf("expected one skipped (not passed) step result, got %+v", result.Results)
	}
}
