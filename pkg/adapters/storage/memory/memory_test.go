package memory

import (
	"context"
	"testing"
	"time"

	"github.com/mrioja/flowd/internal/domain"
)

func TestStateStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	state := &domain.TaskState{
		TaskID:      "t1",
		Description: "test task",
		Status:      domain.TaskStatusRunning,
		StepStatuses: map[string]domain.StepStatus{
			"a": domain.StepStatusCompleted,
		},
		SubmittedAt: time.Now(),
	}
	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.GetState(ctx, "t1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.TaskStatusRunning || got.StepStatuses["a"] != domain.StepStatusCompleted {
		t.Errorf("state = %+v", got)
	}
}

func TestGetStateReturnsCopy(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	_ = store.SaveState(ctx, &domain.TaskState{
		TaskID:       "t1",
		Status:       domain.TaskStatusRunning,
		StepStatuses: map[string]domain.StepStatus{"a": domain.StepStatusPending},
	})

	first, _ := store.GetState(ctx, "t1")
	first.Status = domain.TaskStatusFailed
	first.StepStatuses["a"] = domain.StepStatusFailed

	second, _ := store.GetState(ctx, "t1")
	if second.Status != domain.TaskStatusRunning {
		t.Error("mutating a returned state must not affect the store")
	}
	if second.StepStatuses["a"] != domain.StepStatusPending {
		t.Error("mutating a returned map must not affect the store")
	}
}

func TestStateStoreMissingAndDelete(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	if _, err := store.GetState(ctx, "missing"); err == nil {
		t.Error("expected error for missing state")
	}

	_ = store.SaveState(ctx, &domain.TaskState{TaskID: "t1"})
	if err := store.DeleteState(ctx, "t1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.GetState(ctx, "t1"); err == nil {
		t.Error("expected error after delete")
	}

	if err := store.SaveState(ctx, nil); err == nil {
		t.Error("expected error saving nil state")
	}
}

func TestListStates(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	_ = store.SaveState(ctx, &domain.TaskState{TaskID: "t1"})
	_ = store.SaveState(ctx, &domain.TaskState{TaskID: "t2"})

	states, err := store.ListStates(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(states) != 2 {
		t.Errorf("listed %d states, want 2", len(states))
	}
}

func TestStatsStoreRoundTripAndIsolation(t *testing.T) {
	store := NewInMemoryStatsStore()
	ctx := context.Background()

	in := map[domain.Category]*domain.CategoryStats{
		domain.CategoryCode: {Executions: 3, Failures: 1, TotalDuration: 6 * time.Second},
	}
	if err := store.SaveStats(ctx, in); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Mutating the caller's map must not leak into the store.
	in[domain.CategoryCode].Executions = 99

	out, err := store.LoadStats(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cs := out[domain.CategoryCode]
	if cs == nil || cs.Executions != 3 {
		t.Errorf("stats = %+v, want 3 executions", cs)
	}

	// Mutating the loaded map must not leak either.
	cs.Failures = 42
	again, _ := store.LoadStats(ctx)
	if again[domain.CategoryCode].Failures != 1 {
		t.Error("loaded stats should be copies")
	}
}
