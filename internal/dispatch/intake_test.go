package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kiln-run/runner/internal/domain"
	"github.com/kiln-run/runner/internal/mq"
)

type fakeRunner struct {
	result domain.RunnerResult
}

func (f *fakeRunner) Run(ctx context.Context, task domain.TaskContext) domain.RunnerResult {
	return f.result
}

func newDelivery(payload any, msgType mq.MessageType) *mq.Delivery {
	return &mq.Delivery{
		Message: mq.Message{
			ID:        "msg-1",
			Type:      msgType,
			Payload:   payload,
			Timestamp: time.Now(),
		},
	}
}

// Ack/nack themselves are the mq.Consumer's responsibility (see
// internal/mq/consumer_test.go); Handle is only responsible for
// returning the right error shape.
func TestIntake_Handle_RunsTaskAndReturnsNil(t *testing.T) {
	task := domain.TaskContext{TaskID: "task-1", SpecName: "demo-spec"}
	runner := &fakeRunner{result: domain.RunnerResult{Success: true, TaskID: task.TaskID}}

	in := &Intake{orchestrator: runner, logger: slog.Default()}
	delivery := newDelivery(mq.TaskDispatchPayload{Task: task}, mq.MessageTypeTaskDispatch)

	if err := in.Handle(context.Background(), delivery); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
}

// A task-level failure is carried in the published RunnerResult, not
// in Handle's own return value, so the consumer still acks it.
func TestIntake_Handle_FailedRunReturnsNil(t *testing.T) {
	task := domain.TaskContext{TaskID: "task-2", SpecName: "demo-spec"}
	runner := &fakeRunner{result: domain.RunnerResult{
		Success:   false,
		TaskID:    task.TaskID,
		ErrorKind: domain.KindTestFailed,
		Error:     "tests failed",
	}}

	in := &Intake{orchestrator: runner, logger: slog.Default()}
	delivery := newDelivery(mq.TaskDispatchPayload{Task: task}, mq.MessageTypeTaskDispatch)

	if err := in.Handle(context.Background(), delivery); err != nil {
		t.Fatalf("a failed run should still return nil so the consumer acks it: %v", err)
	}
}

func TestIntake_Handle_MalformedPayloadReturnsPermanentError(t *testing.T) {
	runner := &fakeRunner{result: domain.RunnerResult{Success: true}}
	in := &Intake{orchestrator: runner, logger: slog.Default()}

	// A payload that cannot unmarshal into TaskDispatchPayload.Task (a
	// TaskContext) can never succeed on retry, so it must come back as
	// a PermanentError, not a plain one the consumer would requeue.
	delivery := newDelivery("not a task payload", mq.MessageTypeTaskDispatch)

	err := in.Handle(context.Background(), delivery)
	if err == nil {
		t.Fatal("expected an error for a malformed payload")
	}

	var permErr *mq.PermanentError
	if !errors.As(err, &permErr) {
		t.Errorf("expected a *mq.PermanentError, got %T: %v", err, err)
	}
}
