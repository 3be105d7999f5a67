package monitor

import (
	"testing"
	"time"
)

func TestDeadline_NotExpired(t *testing.T) {
	start := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	d := NewDeadline(start, time.Minute, nil)
	d.nowFunc = func() time.Time { return start.Add(30 * time.Second) }

	if d.Check() {
		t.Error("deadline should not have expired yet")
	}
	if d.GetRemaining() != 30*time.Second {
		t.Errorf("GetRemaining = %v, want 30s", d.GetRemaining())
	}
}

func TestDeadline_ExpiresAndFiresOnce(t *testing.T) {
	start := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	calls := 0
	d := NewDeadline(start, time.Minute, func() { calls++ })

	now := start.Add(90 * time.Second)
	d.nowFunc = func() time.Time { return now }

	if !d.Check() {
		t.Fatal("deadline should have expired")
	}
	if !d.Check() {
		t.Fatal("deadline should remain expired")
	}
	if calls != 1 {
		t.Errorf("onExpire fired %d times, want 1", calls)
	}
	if d.GetRemaining() != 0 {
		t.Errorf("GetRemaining = %v, want 0", d.GetRemaining())
	}
}

func TestTracker_RecordAndAggregate(t *testing.T) {
	tr := NewTracker()

	start := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tr.Record(ServiceCall{
		ServiceName: "llm",
		Operation:   "generate_code",
		Start:       start,
		End:         start.Add(2 * time.Second),
		Success:     true,
		Metadata:    map[string]any{"tokens_used": 120},
	})
	tr.Record(ServiceCall{
		ServiceName: "llm",
		Operation:   "generate_code",
		Start:       start,
		End:         start.Add(4 * time.Second),
		Success:     true,
		Metadata:    map[string]any{"tokens_used": 80},
	})

	agg, ok := tr.Aggregate("llm")
	if !ok {
		t.Fatal("expected aggregate for llm")
	}
	if agg.Count != 2 {
		t.Errorf("Count = %d, want 2", agg.Count)
	}
	if agg.TokensUsed != 200 {
		t.Errorf("TokensUsed = %d, want 200", agg.TokensUsed)
	}
	if agg.MinDuration != 2*time.Second || agg.MaxDuration != 4*time.Second {
		t.Errorf("min/max = %v/%v, want 2s/4s", agg.MinDuration, agg.MaxDuration)
	}
}

func TestTracker_UnknownService(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Aggregate("nope"); ok {
		t.Error("expected no aggregate for a service with no recorded calls")
	}
}
