// Package stats accumulates per-category step execution statistics and
// derives plan duration estimates from them.
//
// The store is constructed explicitly by top-level wiring with a load-on-
// start / flush-on-shutdown lifecycle; there is deliberately no package-level
// state.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/ports"
)

// Store keeps category statistics in memory and periodically flushes them to
// the backing StatsStore. Safe for concurrent use.
type Store struct {
	backend  ports.StatsStore
	logger   *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	data    map[domain.Category]*domain.CategoryStats
	dirty   bool
	started bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStore creates a stats store flushing every interval.
func NewStore(backend ports.StatsStore, interval time.Duration, logger *zap.Logger) *Store {
	return &Store{
		backend:  backend,
		logger:   logger,
		interval: interval,
		data:     make(map[domain.Category]*domain.CategoryStats),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start loads persisted statistics and begins the periodic flush loop.
func (s *Store) Start(ctx context.Context) error {
	loaded, err := s.backend.LoadStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load category stats: %w", err)
	}

	s.mu.Lock()
	for category, cs := range loaded {
		s.data[category] = cs
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("category stats loaded", zap.Int("categories", len(loaded)))

	go s.flushLoop()
	return nil
}

// Record adds one step outcome to the category's statistics.
func (s *Store) Record(category domain.Category, success bool, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.data[category]
	if !ok {
		cs = &domain.CategoryStats{}
		s.data[category] = cs
	}
	cs.Executions++
	if !success {
		cs.Failures++
	}
	cs.TotalDuration += duration
	s.dirty = true
}

// Estimate returns the average step duration recorded for a category.
// The second return is false when nothing was recorded yet.
func (s *Store) Estimate(category domain.Category) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.data[category]
	if !ok || cs.Executions == 0 {
		return 0, false
	}
	return cs.Average(), true
}

// EstimatePlan sums per-category averages over the plan's steps. Steps of
// categories without history contribute nothing; a zero estimate means no
// history at all.
func (s *Store) EstimatePlan(p *domain.Plan) time.Duration {
	var total time.Duration
	for _, step := range p.Steps {
		if avg, ok := s.Estimate(step.Category); ok {
			total += avg
		}
	}
	return total
}

// Snapshot returns a copy of the current statistics.
func (s *Store) Snapshot() map[domain.Category]*domain.CategoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Category]*domain.CategoryStats, len(s.data))
	for category, cs := range s.data {
		clone := *cs
		out[category] = &clone
	}
	return out
}

// Flush persists the current statistics if anything changed since the last
// flush.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := make(map[domain.Category]*domain.CategoryStats, len(s.data))
	for category, cs := range s.data {
		clone := *cs
		snapshot[category] = &clone
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.backend.SaveStats(ctx, snapshot); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("failed to save category stats: %w", err)
	}
	return nil
}

// Shutdown stops the flush loop and persists any pending statistics. Safe
// to call after a failed Start, when no flush loop is running.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return s.Flush(ctx)
	}

	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return fmt.Errorf("stats store shutdown timeout")
	}
	return s.Flush(ctx)
}

func (s *Store) flushLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("periodic stats flush failed", zap.Error(err))
			}
		}
	}
}
