package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	storagemem "github.com/mrioja/flowd/pkg/adapters/storage/memory"
)

func TestRecordAndEstimate(t *testing.T) {
	s := NewStore(storagemem.NewInMemoryStatsStore(), time.Minute, zap.NewNop())

	s.Record(domain.CategoryResearch, true, 2*time.Second)
	s.Record(domain.CategoryResearch, false, 4*time.Second)

	avg, ok := s.Estimate(domain.CategoryResearch)
	if !ok {
		t.Fatal("expected an estimate after recordings")
	}
	if avg != 3*time.Second {
		t.Errorf("average = %s, want 3s", avg)
	}

	if _, ok := s.Estimate(domain.CategoryCode); ok {
		t.Error("category without history must not estimate")
	}

	snap := s.Snapshot()
	cs := snap[domain.CategoryResearch]
	if cs == nil || cs.Executions != 2 || cs.Failures != 1 {
		t.Errorf("snapshot = %+v", cs)
	}
}

func TestEstimatePlanSumsKnownCategories(t *testing.T) {
	s := NewStore(storagemem.NewInMemoryStatsStore(), time.Minute, zap.NewNop())
	s.Record(domain.CategoryResearch, true, 2*time.Second)
	s.Record(domain.CategoryWriting, true, 1*time.Second)

	plan := &domain.Plan{Steps: []domain.Step{
		{ID: "a", Category: domain.CategoryResearch},
		{ID: "b", Category: domain.CategoryWriting},
		{ID: "c", Category: domain.CategoryCode}, // no history
	}}

	if got := s.EstimatePlan(plan); got != 3*time.Second {
		t.Errorf("estimate = %s, want 3s", got)
	}

	empty := NewStore(storagemem.NewInMemoryStatsStore(), time.Minute, zap.NewNop())
	if got := empty.EstimatePlan(plan); got != 0 {
		t.Errorf("estimate without history = %s, want 0", got)
	}
}

func TestFlushPersistsAndSkipsWhenClean(t *testing.T) {
	backend := storagemem.NewInMemoryStatsStore()
	s := NewStore(backend, time.Minute, zap.NewNop())
	ctx := context.Background()

	// Nothing recorded yet: flush is a no-op.
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("clean flush failed: %v", err)
	}
	loaded, _ := backend.LoadStats(ctx)
	if len(loaded) != 0 {
		t.Errorf("backend should be empty after clean flush, got %v", loaded)
	}

	s.Record(domain.CategoryCode, true, time.Second)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	loaded, _ = backend.LoadStats(ctx)
	if loaded[domain.CategoryCode] == nil || loaded[domain.CategoryCode].Executions != 1 {
		t.Errorf("backend = %v, want one code execution", loaded)
	}
}

func TestStartLoadsPersistedStats(t *testing.T) {
	backend := storagemem.NewInMemoryStatsStore()
	ctx := context.Background()

	seed := map[domain.Category]*domain.CategoryStats{
		domain.CategoryAnalysis: {Executions: 4, Failures: 1, TotalDuration: 8 * time.Second},
	}
	if err := backend.SaveStats(ctx, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	s := NewStore(backend, time.Hour, zap.NewNop())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Shutdown(ctx)

	avg, ok := s.Estimate(domain.CategoryAnalysis)
	if !ok || avg != 2*time.Second {
		t.Errorf("average = %s (ok=%v), want 2s", avg, ok)
	}
}

// loadFailingBackend refuses to load, simulating an unreachable backend at
// boot time.
type loadFailingBackend struct{}

func (loadFailingBackend) LoadStats(ctx context.Context) (map[domain.Category]*domain.CategoryStats, error) {
	return nil, errors.New("backend unavailable")
}

func (loadFailingBackend) SaveStats(ctx context.Context, stats map[domain.Category]*domain.CategoryStats) error {
	return nil
}

func TestShutdownAfterFailedStartReturnsPromptly(t *testing.T) {
	s := NewStore(loadFailingBackend{}, time.Minute, zap.NewNop())

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	begin := time.Now()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
		t.Errorf("shutdown took %s, want an immediate return", elapsed)
	}
}

func TestShutdownFlushesPending(t *testing.T) {
	backend := storagemem.NewInMemoryStatsStore()
	ctx := context.Background()

	s := NewStore(backend, time.Hour, zap.NewNop())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	s.Record(domain.CategoryGeneral, true, time.Second)
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	loaded, _ := backend.LoadStats(ctx)
	if loaded[domain.CategoryGeneral] == nil {
		t.Error("pending stats should be flushed on shutdown")
	}
}
