// Package dispatch provides StepDispatcher implementations: the production
// LLM-backed dispatcher and a no-op mock for testing.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/ports"
)

const stepSystemPromptFormat = `You are a worker executing one step of a larger plan.
Step category: %s. Expected output kind: %s.
Use the dependency outputs as context. Answer with the step output only.`

// SlotStatus is a snapshot of the dispatcher's concurrency slots.
type SlotStatus struct {
	Total int `json:"total"`
	Busy  int `json:"busy"`
	Idle  int `json:"idle"`
}

// LLMDispatcher performs steps by prompting an LLM with the step
// instructions and the outputs of its dependencies. A fixed number of slots
// bounds concurrent calls across all executions sharing the dispatcher.
type LLMDispatcher struct {
	llm     ports.LLMClient
	metrics ports.MetricsCollector
	logger  *zap.Logger

	slots chan struct{}

	mu   sync.RWMutex
	busy int
}

// NewLLMDispatcher creates an LLM-backed dispatcher with the given number of
// concurrency slots. The metrics collector may be nil.
func NewLLMDispatcher(llm ports.LLMClient, slots int, metrics ports.MetricsCollector, logger *zap.Logger) *LLMDispatcher {
	if slots < 1 {
		slots = 1
	}
	return &LLMDispatcher{
		llm:     llm,
		metrics: metrics,
		logger:  logger,
		slots:   make(chan struct{}, slots),
	}
}

// Dispatch acquires a slot, prompts the LLM and returns the step result.
// Slot acquisition respects ctx so a timed-out step never occupies a slot.
func (d *LLMDispatcher) Dispatch(ctx context.Context, req ports.DispatchRequest) (*domain.StepResult, error) {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for dispatcher slot: %w", ctx.Err())
	}
	d.setBusy(+1)
	defer func() {
		<-d.slots
		d.setBusy(-1)
	}()

	step := req.Step
	d.logger.Info("dispatching step",
		zap.String("step_id", step.ID),
		zap.String("trace_id", req.TraceID),
		zap.String("category", string(step.Category)))

	systemPrompt := fmt.Sprintf(stepSystemPromptFormat, step.Category, step.OutputKind)
	userPrompt := buildStepPrompt(step, req.DependencyResults)

	start := time.Now()
	completion, err := d.llm.Complete(ctx, systemPrompt, userPrompt)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	if d.metrics != nil {
		d.metrics.RecordLLMCall(completion.Model, completion.InputTokens, completion.OutputTokens, elapsed)
	}

	return &domain.StepResult{
		StepID:   step.ID,
		Success:  true,
		Output:   completion.Content,
		Duration: elapsed,
		Usage: &domain.TokenUsage{
			InputTokens:  completion.InputTokens,
			OutputTokens: completion.OutputTokens,
		},
	}, nil
}

// Status reports the current slot occupancy.
func (d *LLMDispatcher) Status() SlotStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := cap(d.slots)
	return SlotStatus{Total: total, Busy: d.busy, Idle: total - d.busy}
}

func (d *LLMDispatcher) setBusy(delta int) {
	d.mu.Lock()
	d.busy += delta
	busy, total := d.busy, cap(d.slots)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordDispatcherSlots(busy, total-busy)
	}
}

// buildStepPrompt assembles the user prompt from the step instructions and
// its dependency outputs, in deterministic id order.
func buildStepPrompt(step domain.Step, deps map[string]*domain.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instructions:\n%s\n", step.Instructions)

	if len(deps) > 0 {
		ids := make([]string, 0, len(deps))
		for id := range deps {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		b.WriteString("\nDependency outputs:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "--- %s ---\n%v\n", id, deps[id].Output)
		}
	}
	return b.String()
}
