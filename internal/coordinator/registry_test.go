package coordinator

import (
	"testing"
	"time"
)

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r := NewRegistry(Config{CoordinationDir: t.TempDir()})

	ok, err := r.Register("runner-1", "task-1", "demo", "/slots/1")
	if err != nil || !ok {
		t.Fatalf("Register() = %v, %v", ok, err)
	}

	count, err := r.ConcurrentCount()
	if err != nil || count != 1 {
		t.Fatalf("ConcurrentCount() = %d, %v, want 1", count, err)
	}

	if err := r.Unregister("runner-1"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	count, err = r.ConcurrentCount()
	if err != nil || count != 0 {
		t.Fatalf("ConcurrentCount() after unregister = %d, %v, want 0", count, err)
	}
}

func TestRegistry_RejectsDuplicateWorkspace(t *testing.T) {
	r := NewRegistry(Config{CoordinationDir: t.TempDir()})

	if ok, err := r.Register("runner-1", "task-1", "demo", "/slots/1"); err != nil || !ok {
		t.Fatalf("first Register() = %v, %v", ok, err)
	}

	ok, err := r.Register("runner-2", "task-2", "demo", "/slots/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second registration of the same workspace to be refused")
	}
}

func TestRegistry_RejectsAtCapacity(t *testing.T) {
	r := NewRegistry(Config{CoordinationDir: t.TempDir(), MaxParallel: 1})

	if ok, _ := r.Register("runner-1", "task-1", "demo", "/slots/1"); !ok {
		t.Fatal("expected first registration to be admitted")
	}

	ok, err := r.Register("runner-2", "task-2", "demo", "/slots/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected registration at capacity to be refused")
	}
}

func TestRegistry_SweepsStaleRecords(t *testing.T) {
	r := NewRegistry(Config{CoordinationDir: t.TempDir(), HeartbeatTimeout: time.Minute})

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return base }

	if ok, _ := r.Register("runner-1", "task-1", "demo", "/slots/1"); !ok {
		t.Fatal("expected registration to be admitted")
	}

	r.nowFunc = func() time.Time { return base.Add(2 * time.Minute) }

	count, err := r.ConcurrentCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("ConcurrentCount() = %d, want 0 after stale sweep", count)
	}
}

func TestRegistry_DetectConflicts(t *testing.T) {
	r := NewRegistry(Config{CoordinationDir: t.TempDir()})

	r.Register("runner-1", "task-1", "demo", "/slots/1")
	r.UpdateResources("runner-1", []string{"shared.go"}, []string{"feature/shared"})

	r.Register("runner-2", "task-2", "demo", "/slots/2")

	conflicts, err := r.DetectConflicts("runner-2", []string{"shared.go"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d: %v", len(conflicts), conflicts)
	}
}

func TestRegistry_Heartbeat_NoOpWhenGone(t *testing.T) {
	r := NewRegistry(Config{CoordinationDir: t.TempDir()})
	if err := r.Heartbeat("nonexistent"); err != nil {
		t.Errorf("Heartbeat on a missing record should be a no-op, got %v", err)
	}
}

func TestRegistry_WaitTime(t *testing.T) {
	r := NewRegistry(Config{CoordinationDir: t.TempDir(), MaxParallel: 1})

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return base }
	r.Register("runner-1", "task-1", "demo", "/slots/1")

	r.nowFunc = func() time.Time { return base.Add(10 * time.Minute) }
	wait, err := r.WaitTime()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1800*time.Second - 10*time.Minute
	if wait != want {
		t.Errorf("WaitTime() = %v, want %v", wait, want)
	}
}
