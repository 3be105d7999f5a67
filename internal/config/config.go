// Package config loads Runner configuration from its process
// environment per the recognized key table: concurrency caps, retry
// ladders, external collaborator endpoints, LLM driver parameters,
// state persistence, health checks, logging, and credential env var
// names.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/kiln-run/runner/internal/retry"
)

// Config is the fully resolved process configuration, defaults applied.
type Config struct {
	MaxParallelRunners    int
	DefaultTimeoutSeconds int

	MaxMemoryMB    int
	MaxCPUPercent  float64

	GitRetryPolicy     retry.Policy
	NetworkRetryPolicy retry.Policy

	MaskSecrets bool

	ArtifactStoreURL string
	TaskRegistryURL  string
	RepoPoolURL      string

	LLMModel          string
	LLMTimeoutSeconds int
	LLMMaxTokens      int

	PersistState  bool
	StateFilePath string

	EnableHealthCheck bool
	HealthCheckPort   int

	LogLevel          string
	StructuredLogging bool
	LogFile           string

	GitTokenEnvVar             string
	ArtifactStoreAPIKeyEnvVar  string
	LLMAPIKeyEnvVar            string
}

// Defaults returns a Config with every spec-mandated default applied
// and no external collaborators configured.
func Defaults() *Config {
	return &Config{
		MaxParallelRunners:    0, // unlimited
		DefaultTimeoutSeconds: 1800,
		MaxMemoryMB:           0,
		MaxCPUPercent:         0,
		GitRetryPolicy:        retry.NetworkDefaults(),
		NetworkRetryPolicy:    retry.NetworkDefaults(),
		MaskSecrets:           true,
		LLMModel:              "",
		LLMTimeoutSeconds:     120,
		LLMMaxTokens:          0,
		PersistState:          false,
		StateFilePath:         "",
		EnableHealthCheck:     false,
		HealthCheckPort:       8080,
		LogLevel:              "info",
		StructuredLogging:     true,
		LogFile:               "",
		GitTokenEnvVar:            "GIT_TOKEN",
		ArtifactStoreAPIKeyEnvVar: "ARTIFACT_STORE_API_KEY",
		LLMAPIKeyEnvVar:           "LLM_API_KEY",
	}
}

// LoadFromEnv resolves Config from the process environment, falling
// back to Defaults() for every key that is unset or fails to parse.
func LoadFromEnv() *Config {
	cfg := Defaults()

	cfg.MaxParallelRunners = envInt("MAX_PARALLEL_RUNNERS", cfg.MaxParallelRunners)
	cfg.DefaultTimeoutSeconds = envInt("DEFAULT_TIMEOUT_SECONDS", cfg.DefaultTimeoutSeconds)
	cfg.MaxMemoryMB = envInt("MAX_MEMORY_MB", cfg.MaxMemoryMB)
	cfg.MaxCPUPercent = envFloat("MAX_CPU_PERCENT", cfg.MaxCPUPercent)

	cfg.GitRetryPolicy = envRetryPolicy("GIT_RETRY", cfg.GitRetryPolicy)
	cfg.NetworkRetryPolicy = envRetryPolicy("NETWORK_RETRY", cfg.NetworkRetryPolicy)

	cfg.MaskSecrets = envBool("MASK_SECRETS", cfg.MaskSecrets)

	cfg.ArtifactStoreURL = envString("ARTIFACT_STORE_URL", cfg.ArtifactStoreURL)
	cfg.TaskRegistryURL = envString("TASK_REGISTRY_URL", cfg.TaskRegistryURL)
	cfg.RepoPoolURL = envString("REPO_POOL_URL", cfg.RepoPoolURL)

	cfg.LLMModel = envString("LLM_MODEL", cfg.LLMModel)
	cfg.LLMTimeoutSeconds = envInt("LLM_TIMEOUT_SECONDS", cfg.LLMTimeoutSeconds)
	cfg.LLMMaxTokens = envInt("LLM_MAX_TOKENS", cfg.LLMMaxTokens)

	cfg.PersistState = envBool("PERSIST_STATE", cfg.PersistState)
	cfg.StateFilePath = envString("STATE_FILE_PATH", cfg.StateFilePath)

	cfg.EnableHealthCheck = envBool("ENABLE_HEALTH_CHECK", cfg.EnableHealthCheck)
	cfg.HealthCheckPort = envInt("HEALTH_CHECK_PORT", cfg.HealthCheckPort)

	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.StructuredLogging = envBool("STRUCTURED_LOGGING", cfg.StructuredLogging)
	cfg.LogFile = envString("LOG_FILE", cfg.LogFile)

	cfg.GitTokenEnvVar = envString("GIT_TOKEN_ENV_VAR", cfg.GitTokenEnvVar)
	cfg.ArtifactStoreAPIKeyEnvVar = envString("ARTIFACT_STORE_API_KEY_ENV_VAR", cfg.ArtifactStoreAPIKeyEnvVar)
	cfg.LLMAPIKeyEnvVar = envString("LLM_API_KEY_ENV_VAR", cfg.LLMAPIKeyEnvVar)

	return cfg
}

// DefaultTimeout returns DefaultTimeoutSeconds as a time.Duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

// LLMTimeout returns LLMTimeoutSeconds as a time.Duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envRetryPolicy reads "<prefix>_INITIAL_SECONDS", "<prefix>_BASE",
// "<prefix>_MAX_SECONDS", and "<prefix>_MAX_RETRIES", layering them
// over fallback where set.
func envRetryPolicy(prefix string, fallback retry.Policy) retry.Policy {
	p := fallback
	if v := envFloat(prefix+"_INITIAL_SECONDS", 0); v > 0 {
		p.InitialDelay = time.Duration(v * float64(time.Second))
	}
	if v := envFloat(prefix+"_BASE", 0); v > 0 {
		p.ExponentialBase = v
	}
	if v := envFloat(prefix+"_MAX_SECONDS", 0); v > 0 {
		p.MaxDelay = time.Duration(v * float64(time.Second))
	}
	if v := envInt(prefix+"_MAX_RETRIES", 0); v > 0 {
		p.MaxRetries = v
	}
	return p
}
