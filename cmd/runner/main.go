// Runner — executes one code-generation task at a time: prepares a
// git workspace, calls an LLM driver for an implementation, runs
// tests, pushes the branch, and reports the outcome.
//
// Usage:
//
//	runner [--runner-id ID] serve
//
// The broker URL and coordination directory come from the RABBITMQ_URL
// and COORDINATION_DIR environment variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kiln-run/runner/internal/artifactclient"
	"github.com/kiln-run/runner/internal/config"
	"github.com/kiln-run/runner/internal/coordinator"
	"github.com/kiln-run/runner/internal/credential"
	"github.com/kiln-run/runner/internal/dispatch"
	"github.com/kiln-run/runner/internal/health"
	"github.com/kiln-run/runner/internal/history"
	"github.com/kiln-run/runner/internal/llmdriver"
	"github.com/kiln-run/runner/internal/mq"
	"github.com/kiln-run/runner/internal/orchestrator"
	"github.com/kiln-run/runner/internal/poolclient"
	"github.com/kiln-run/runner/internal/registryclient"
	"github.com/kiln-run/runner/internal/telemetry"
	"github.com/kiln-run/runner/internal/workspace"
)

const shutdownTimeout = 5 * time.Second

var version = "dev"

func main() {
	var runnerID string

	rootCmd := &cobra.Command{
		Use:           "runner",
		Short:         "Runner — executes code-generation tasks dispatched over RabbitMQ",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&runnerID, "runner-id", "", "fixed runner_id (random uuid if empty)")

	rootCmd.AddCommand(newServeCmd(&runnerID))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCmd(runnerID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to RabbitMQ and process tasks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*runnerID)
		},
	}
}

func serve(runnerID string) error {
	logger := telemetry.SetupLogger()
	logger.Info("starting runner", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	settings := config.LoadFromEnv()

	credStore := credential.NewStore()
	if settings.MaskSecrets {
		logger = slog.New(credential.NewMaskingHandler(logger.Handler(), credStore))
		slog.SetDefault(logger)
	}

	gitEnv := gitEnvFromCredentials(credStore, settings)
	workspaceManager := workspace.NewManager(settings.GitRetryPolicy, gitEnv)

	var coordinatorReg *coordinator.Registry
	if dir := os.Getenv("COORDINATION_DIR"); dir != "" {
		coordinatorReg = coordinator.NewRegistry(coordinator.Config{
			CoordinationDir: dir,
			MaxParallel:     settings.MaxParallelRunners,
		})
	}

	llmDriver := llmdriver.NewHTTPDriver(llmdriver.Config{
		BaseURL:        os.Getenv("LLM_BASE_URL"),
		APIKey:         apiKeyFromEnv(credStore, "llm_api_key", settings.LLMAPIKeyEnvVar),
		Model:          settings.LLMModel,
		TimeoutSeconds: settings.LLMTimeoutSeconds,
		RetryPolicy:    settings.NetworkRetryPolicy,
	})

	var registryClient *registryclient.Client
	if settings.TaskRegistryURL != "" {
		registryClient = registryclient.NewClient(settings.TaskRegistryURL)
	}

	var artifactClient *artifactclient.Client
	if settings.ArtifactStoreURL != "" {
		artifactClient = artifactclient.NewClient(settings.ArtifactStoreURL)
	}

	var poolClient *poolclient.Client
	if settings.RepoPoolURL != "" {
		poolClient = poolclient.NewClient(settings.RepoPoolURL)
	}

	var recorder *history.Recorder
	if dsn := os.Getenv("HISTORY_DB_URL"); dsn != "" {
		pool, err := history.NewPool(ctx, dsn)
		if err != nil {
			logger.Warn("history database unavailable, running without run-history audit", "error", err)
		} else {
			defer pool.Close()
			recorder = history.NewRecorder(pool)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		RunnerID:         runnerID,
		Settings:         settings,
		Credentials:      credStore,
		WorkspaceManager: workspaceManager,
		Coordinator:      coordinatorReg,
		LLM:              llmDriver,
		RegistryClient:   registryClient,
		ArtifactClient:   artifactClient,
		History:          recorder,
		Logger:           logger,
	})

	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	var intake *dispatch.Intake
	mqConn, err := mq.NewConnectionWithPolicy(mqURL, logger, settings.NetworkRetryPolicy)
	if err != nil {
		logger.Warn("RabbitMQ not available, runner will not receive dispatched tasks", "error", err)
	} else {
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to declare RabbitMQ topology", "error", err)
		} else {
			logger.Info("RabbitMQ topology ready", "topology", mq.TopologyInfo())
		}

		publisher := mq.NewPublisher(mqConn, logger)

		intake = dispatch.New(dispatch.Config{
			Connection:   mqConn,
			Publisher:    publisher,
			Orchestrator: orch,
			Pool:         poolClient,
			Logger:       logger,
		})

		go func() {
			if err := intake.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("task intake stopped unexpectedly", "error", err)
			}
		}()
	}

	var healthServer *health.Server
	if settings.EnableHealthCheck {
		healthServer = health.NewServer(health.Config{
			Source: orch,
			Services: map[string]health.ServiceChecker{
				"task_registry":  optionalHealthCheck(registryClient),
				"artifact_store": optionalArtifactHealthCheck(artifactClient),
				"repo_pool":      optionalPoolHealthCheck(poolClient),
			},
			Logger: logger,
			Port:   settings.HealthCheckPort,
		})
		healthServer.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			_ = healthServer.Stop(shutdownCtx)
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsPort := ":9090"
	if v := os.Getenv("METRICS_PORT"); v != "" {
		metricsPort = ":" + v
	}
	go func() {
		logger.Info("serving metrics", "addr", metricsPort)
		if err := http.ListenAndServe(metricsPort, mux); err != nil && ctx.Err() == nil {
			logger.Warn("metrics server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if intake != nil {
		intake.Stop()
	}
	logger.Info("runner stopped")
	return nil
}

func gitEnvFromCredentials(store *credential.Store, settings *config.Config) []string {
	token, ok := store.GetCredential("git_token", settings.GitTokenEnvVar)
	if !ok {
		return nil
	}
	return []string{"GIT_ASKPASS_TOKEN=" + token}
}

func apiKeyFromEnv(store *credential.Store, name, envVar string) string {
	value, _ := store.GetCredential(name, envVar)
	return value
}

func optionalHealthCheck(c *registryclient.Client) health.ServiceChecker {
	if c == nil {
		return func(ctx context.Context) error { return nil }
	}
	return c.Health
}

func optionalArtifactHealthCheck(c *artifactclient.Client) health.ServiceChecker {
	if c == nil {
		return func(ctx context.Context) error { return nil }
	}
	return c.Health
}

func optionalPoolHealthCheck(c *poolclient.Client) health.ServiceChecker {
	if c == nil {
		return func(ctx context.Context) error { return nil }
	}
	return c.Health
}
