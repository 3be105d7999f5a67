// Package dispatch is the Runner's task intake: it consumes
// tasks.dispatch deliveries, drives one Orchestrator.Run per task,
// releases the workspace slot, and publishes the outcome back to
// runner.results.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/kiln-run/runner/internal/domain"
	"github.com/kiln-run/runner/internal/mq"
	"github.com/kiln-run/runner/internal/poolclient"
)

// Runner is the narrow contract the intake loop drives;
// orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, task domain.TaskContext) domain.RunnerResult
}

// Config wires an Intake's collaborators.
type Config struct {
	Connection   *mq.Connection
	Publisher    *mq.Publisher
	Orchestrator Runner
	Pool         *poolclient.Client // optional: releases task.SlotID after every run
	Prefetch     int

	Logger *slog.Logger
}

// Intake owns the consume loop binding RabbitMQ task deliveries to the
// Orchestrator.
type Intake struct {
	consumer     *mq.Consumer
	publisher    *mq.Publisher
	orchestrator Runner
	pool         *poolclient.Client
	logger       *slog.Logger
}

// New constructs an Intake, wiring a mq.Consumer on tasks.dispatch to
// this Intake's own Handle method.
func New(cfg Config) *Intake {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	in := &Intake{
		publisher:    cfg.Publisher,
		orchestrator: cfg.Orchestrator,
		pool:         cfg.Pool,
		logger:       logger,
	}

	in.consumer = mq.NewConsumer(cfg.Connection, logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueTasksDispatch),
		Handler:  in.Handle,
		Prefetch: cfg.Prefetch,
	})

	return in
}

// Start runs the consume loop until ctx is canceled.
func (in *Intake) Start(ctx context.Context) error {
	return in.consumer.Start(ctx)
}

// Stop halts the consume loop.
func (in *Intake) Stop() {
	in.consumer.Stop()
}

// Handle is the mq.Handler bound to this Intake: parse the dispatch
// payload, run it, release the slot, and publish the result. Ack/nack
// themselves are owned entirely by the mq.Consumer driving this
// handler: a malformed payload returns an mq.PermanentError so the
// consumer nacks it without requeue (it can never succeed on
// redelivery); every other outcome returns nil so the consumer acks,
// since task-level failure is already recorded in the published
// RunnerResult rather than at the AMQP delivery level.
func (in *Intake) Handle(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskDispatchPayload](&delivery.Message)
	if err != nil {
		in.logger.Error("malformed task dispatch payload", "error", err)
		return mq.Permanent(err)
	}

	task := payload.Task
	in.logger.Info("task dispatch received", "task_id", task.TaskID, "spec_name", task.SpecName)

	result := in.orchestrator.Run(ctx, task)

	if in.pool != nil && task.SlotID != "" {
		if err := in.pool.Release(ctx, task.SlotID); err != nil {
			in.logger.Warn("releasing workspace slot failed", "slot_id", task.SlotID, "error", err)
		}
	}

	if in.publisher != nil {
		if err := in.publisher.PublishTaskResult(ctx, result); err != nil {
			in.logger.Error("publishing task result failed", "task_id", task.TaskID, "error", err)
		}
	}

	if !result.Success {
		in.logger.Warn("task run failed", "task_id", task.TaskID, "error_kind", result.ErrorKind, "error", result.Error)
	}

	return nil
}
