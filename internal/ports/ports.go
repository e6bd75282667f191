// Package ports defines the interfaces between the orchestration core and
// its adapters: dispatching, LLM access, events, storage and metrics.
package ports

import (
	"context"
	"time"

	"github.com/mrioja/flowd/internal/domain"
)

// DispatchRequest carries everything a dispatcher needs to perform one step.
// DependencyResults holds the settled results of the step's direct
// dependencies, drawn from strictly earlier levels; the map is read-only.
type DispatchRequest struct {
	Step              domain.Step
	DependencyResults map[string]*domain.StepResult
	TraceID           string
}

// StepDispatcher performs a step's actual work. Implementations should honor
// ctx cancellation where they can; the executor stops waiting on timeout but
// does not force-terminate the call.
type StepDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*domain.StepResult, error)
}

// ProgressObserver is notified synchronously on step transitions. Panics
// raised by implementations are swallowed by the executor.
type ProgressObserver interface {
	OnProgress(stepID string, status domain.StepStatus, result *domain.StepResult)
}

// Synthesizer turns aggregated step outputs into a prose response. Failures
// are recovered locally by the aggregator and never surfaced to callers.
type Synthesizer interface {
	Synthesize(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMCompletion is the reply of a single LLM call.
type LLMCompletion struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// LLMClient is a minimal completion interface over an LLM provider. It backs
// the plan generator, the response synthesizer and the LLM step dispatcher.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*LLMCompletion, error)
}

// EventHandler consumes a single event from a topic subscription.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers task/step events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// StateStore persists task state across transitions.
type StateStore interface {
	SaveState(ctx context.Context, state *domain.TaskState) error
	GetState(ctx context.Context, taskID string) (*domain.TaskState, error)
	DeleteState(ctx context.Context, taskID string) error
	ListStates(ctx context.Context) ([]*domain.TaskState, error)
}

// StatsStore persists per-category execution statistics between restarts.
type StatsStore interface {
	LoadStats(ctx context.Context) (map[domain.Category]*domain.CategoryStats, error)
	SaveStats(ctx context.Context, stats map[domain.Category]*domain.CategoryStats) error
}

// MetricsCollector records orchestration metrics. Implementations must be
// safe for concurrent use.
type MetricsCollector interface {
	RecordPlanSubmitted(status string)
	RecordPlanCompleted(status string, duration time.Duration)
	RecordPlanSource(source string)
	RecordStepExecuted(category, status string, duration time.Duration)
	RecordSynthesizerFallback()
	RecordLLMCall(model string, inputTokens, outputTokens int64, duration time.Duration)
	RecordDispatcherSlots(busy, idle int)
}
