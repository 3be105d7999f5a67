package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_Delay_Monotonic(t *testing.T) {
	p := NetworkDefaults()

	prev := p.Delay(0)
	for n := 1; n < 10; n++ {
		d := p.Delay(n)
		if d < prev {
			t.Fatalf("delay(%d)=%v is less than delay(%d)=%v", n, d, n-1, prev)
		}
		if d > p.MaxDelay {
			t.Fatalf("delay(%d)=%v exceeds max_delay=%v", n, d, p.MaxDelay)
		}
		prev = d
	}
}

func TestPolicy_Delay_Formula(t *testing.T) {
	p := Policy{InitialDelay: time.Second, ExponentialBase: 2, MaxDelay: 60 * time.Second, MaxRetries: 3}

	cases := map[int]time.Duration{
		0: time.Second,
		1: 2 * time.Second,
		2: 4 * time.Second,
	}
	for attempt, want := range cases {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	p := Policy{MaxRetries: 3}

	if p.Exhausted(2) {
		t.Error("attempt 2 should not be exhausted under max_retries=3")
	}
	if !p.Exhausted(3) {
		t.Error("attempt 3 should be exhausted under max_retries=3")
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), NetworkDefaults(), AlwaysRetry, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", res.Attempts)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	p := Policy{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, ExponentialBase: 2}

	calls := 0
	res, err := Do(context.Background(), p, AlwaysRetry, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	p := Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, ExponentialBase: 2}

	wantErr := errors.New("permanent")
	calls := 0
	_, err := Do(context.Background(), p, AlwaysRetry, func(ctx context.Context, attempt int) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + max_retries)", calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	wantErr := errors.New("categorical")
	calls := 0
	_, err := Do(context.Background(), NetworkDefaults(), func(error) bool { return false }, func(ctx context.Context, attempt int) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestManager_RecordFailureAndEligibility(t *testing.T) {
	m := NewManager(Policy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 300 * time.Second, ExponentialBase: 2})

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	info := m.RecordFailure("task-1", "boom", now)
	if info.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", info.RetryCount)
	}
	if m.Eligible("task-1", now) {
		t.Error("task should not be eligible immediately after a failure")
	}
	if !m.Eligible("task-1", now.Add(2*time.Second)) {
		t.Error("task should be eligible once next_eligible_at has passed")
	}

	m.RecordFailure("task-1", "boom", now.Add(2*time.Second))
	m.RecordFailure("task-1", "boom", now.Add(10*time.Second))
	if !m.Exhausted("task-1") {
		t.Error("task should be exhausted after reaching max_retries")
	}

	m.RecordSuccess("task-1")
	if m.Exhausted("task-1") {
		t.Error("task should not be exhausted after RecordSuccess clears it")
	}
}
