package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if !cfg.MaskSecrets {
		t.Error("expected mask_secrets to default true")
	}
	if cfg.DefaultTimeoutSeconds != 1800 {
		t.Errorf("DefaultTimeoutSeconds = %d, want 1800", cfg.DefaultTimeoutSeconds)
	}
	if cfg.GitTokenEnvVar != "GIT_TOKEN" {
		t.Errorf("GitTokenEnvVar = %q, want GIT_TOKEN", cfg.GitTokenEnvVar)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("MAX_PARALLEL_RUNNERS", "4")
	t.Setenv("MASK_SECRETS", "false")
	t.Setenv("LLM_MODEL", "test-model")
	t.Setenv("GIT_RETRY_MAX_RETRIES", "5")

	cfg := LoadFromEnv()

	if cfg.MaxParallelRunners != 4 {
		t.Errorf("MaxParallelRunners = %d, want 4", cfg.MaxParallelRunners)
	}
	if cfg.MaskSecrets {
		t.Error("expected mask_secrets override to false")
	}
	if cfg.LLMModel != "test-model" {
		t.Errorf("LLMModel = %q, want test-model", cfg.LLMModel)
	}
	if cfg.GitRetryPolicy.MaxRetries != 5 {
		t.Errorf("GitRetryPolicy.MaxRetries = %d, want 5", cfg.GitRetryPolicy.MaxRetries)
	}
}

func TestLoadFromEnv_MalformedFallsBack(t *testing.T) {
	t.Setenv("MAX_PARALLEL_RUNNERS", "not-a-number")

	cfg := LoadFromEnv()

	if cfg.MaxParallelRunners != Defaults().MaxParallelRunners {
		t.Errorf("expected malformed env var to fall back to default, got %d", cfg.MaxParallelRunners)
	}
}
