// Package playbook parses a declarative YAML step list and evaluates
// it against a task's workspace: per-step conditions, ${name}
// substitution, and shell execution with timeout and retry.
package playbook

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Playbook is a declarative, ordered sequence of shell steps.
type Playbook struct {
	Name     string         `yaml:"name" json:"name"`
	Steps    []Step         `yaml:"steps" json:"steps"`
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Step is one shell command with optional gating, timeout, and retry.
type Step struct {
	Name          string `yaml:"name" json:"name"`
	Command       string `yaml:"command" json:"command"`
	Condition     string `yaml:"condition,omitempty" json:"condition,omitempty"`
	FailFast      bool   `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
	TimeoutSeconds int   `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	RetryCount    int    `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
}

// ErrPlaybookLoad wraps any parse/validation failure.
type ErrPlaybookLoad struct {
	Reason string
}

func (e *ErrPlaybookLoad) Error() string {
	return fmt.Sprintf("playbook load failed: %s", e.Reason)
}

const defaultStepTimeoutSeconds = 300

// Parse decodes raw YAML into a Playbook and validates that name and
// steps[] exist and that every step has a name and a command. Other
// fields default: timeout_seconds to 300, retry_count to 0.
func Parse(raw []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(raw, &pb); err != nil {
		return nil, &ErrPlaybookLoad{Reason: err.Error()}
	}

	if pb.Name == "" {
		return nil, &ErrPlaybookLoad{Reason: "playbook name is required"}
	}
	if len(pb.Steps) == 0 {
		return nil, &ErrPlaybookLoad{Reason: "playbook has no steps"}
	}

	for i := range pb.Steps {
		step := &pb.Steps[i]
		if step.Name == "" {
			return nil, &ErrPlaybookLoad{Reason: fmt.Sprintf("step %d has no name", i)}
		}
		if step.Command == "" {
			return nil, &ErrPlaybookLoad{Reason: fmt.Sprintf("step %q has no command", step.Name)}
		}
		if step.TimeoutSeconds <= 0 {
			step.TimeoutSeconds = defaultStepTimeoutSeconds
		}
	}

	return &pb, nil
}
