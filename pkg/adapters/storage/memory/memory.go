package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mrioja/flowd/internal/domain"
)

// InMemoryStateStore implements ports.StateStore with a map. States are
// stored as JSON copies so callers never share mutable structures with the
// store.
type InMemoryStateStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewInMemoryStateStore creates a new in-memory state store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{
		states: make(map[string][]byte),
	}
}

// SaveState stores a copy of the task state.
func (s *InMemoryStateStore) SaveState(ctx context.Context, state *domain.TaskState) error {
	if state == nil || state.TaskID == "" {
		return fmt.Errorf("invalid task state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.TaskID] = data
	return nil
}

// GetState returns a copy of the task state.
func (s *InMemoryStateStore) GetState(ctx context.Context, taskID string) (*domain.TaskState, error) {
	s.mu.RLock()
	data, ok := s.states[taskID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("state not found: %s", taskID)
	}

	var state domain.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// DeleteState removes a task state.
func (s *InMemoryStateStore) DeleteState(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, taskID)
	return nil
}

// ListStates returns all stored task states.
func (s *InMemoryStateStore) ListStates(ctx context.Context) ([]*domain.TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*domain.TaskState, 0, len(s.states))
	for _, data := range s.states {
		var state domain.TaskState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		states = append(states, &state)
	}
	return states, nil
}

// InMemoryStatsStore implements ports.StatsStore with a map.
type InMemoryStatsStore struct {
	mu    sync.RWMutex
	stats map[domain.Category]*domain.CategoryStats
}

// NewInMemoryStatsStore creates a new in-memory stats store.
func NewInMemoryStatsStore() *InMemoryStatsStore {
	return &InMemoryStatsStore{
		stats: make(map[domain.Category]*domain.CategoryStats),
	}
}

// LoadStats returns a copy of the stored statistics.
func (s *InMemoryStatsStore) LoadStats(ctx context.Context) (map[domain.Category]*domain.CategoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Category]*domain.CategoryStats, len(s.stats))
	for category, cs := range s.stats {
		clone := *cs
		out[category] = &clone
	}
	return out, nil
}

// SaveStats replaces the stored statistics with a copy of the given map.
func (s *InMemoryStatsStore) SaveStats(ctx context.Context, stats map[domain.Category]*domain.CategoryStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = make(map[domain.Category]*domain.CategoryStats, len(stats))
	for category, cs := range stats {
		clone := *cs
		s.stats[category] = &clone
	}
	return nil
}
