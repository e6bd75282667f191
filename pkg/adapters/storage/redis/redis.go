package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
)

const (
	stateKeyPrefix = "flowd:state:"
	statsKey       = "flowd:stats:categories"
)

// StateStore implements ports.StateStore using Redis with a TTL per task.
type StateStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStateStore creates a new Redis state store.
func NewStateStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StateStore {
	return &StateStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveState persists the task state.
func (s *StateStore) SaveState(ctx context.Context, state *domain.TaskState) error {
	if state == nil || state.TaskID == "" {
		return fmt.Errorf("invalid task state")
	}
	key := getStateKey(state.TaskID)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.Debug("state saved",
		zap.String("task_id", state.TaskID),
		zap.String("status", string(state.Status)))

	return nil
}

// GetState retrieves a task state.
func (s *StateStore) GetState(ctx context.Context, taskID string) (*domain.TaskState, error) {
	key := getStateKey(taskID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("state not found: %s", taskID)
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	var state domain.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// DeleteState removes a task state.
func (s *StateStore) DeleteState(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, getStateKey(taskID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}

	s.logger.Debug("state deleted", zap.String("task_id", taskID))
	return nil
}

// ListStates returns all stored task states.
func (s *StateStore) ListStates(ctx context.Context) ([]*domain.TaskState, error) {
	pattern := stateKeyPrefix + "*"

	var cursor uint64
	var keys []string
	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	states := make([]*domain.TaskState, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var state domain.TaskState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		states = append(states, &state)
	}

	return states, nil
}

func getStateKey(taskID string) string {
	return stateKeyPrefix + taskID
}

// StatsStore implements ports.StatsStore, keeping all category statistics in
// one JSON value.
type StatsStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStatsStore creates a new Redis stats store.
func NewStatsStore(client *redis.Client, logger *zap.Logger) *StatsStore {
	return &StatsStore{client: client, logger: logger}
}

// LoadStats retrieves all category statistics. A missing key yields an empty
// map.
func (s *StatsStore) LoadStats(ctx context.Context) (map[domain.Category]*domain.CategoryStats, error) {
	data, err := s.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return map[domain.Category]*domain.CategoryStats{}, nil
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	var stats map[domain.Category]*domain.CategoryStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return stats, nil
}

// SaveStats persists all category statistics.
func (s *StatsStore) SaveStats(ctx context.Context, stats map[domain.Category]*domain.CategoryStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := s.client.Set(ctx, statsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}

	s.logger.Debug("category stats saved", zap.Int("categories", len(stats)))
	return nil
}
