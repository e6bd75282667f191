package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/ports"
)

// previewLimit bounds how much of a step's output is quoted in prompts and
// in the deterministic fallback response.
const previewLimit = 500

// timeRounding keeps durations readable in summaries.
const timeRounding = time.Millisecond

const synthesisSystemPrompt = `You are the final stage of a task orchestration pipeline.
You receive the outputs of the steps that were executed to accomplish a task.
Combine them into one clear, well-structured answer to the original task.
Mention failures briefly if any are listed. Do not invent results for steps
that failed or were skipped.`

// Aggregator turns an execution's step-result map into a final response. It
// prefers the external synthesizer but always has a deterministic local
// fallback, so aggregation itself can never fail.
type Aggregator struct {
	synthesizer ports.Synthesizer
	metrics     ports.MetricsCollector
	logger      *zap.Logger
}

// NewAggregator creates a result aggregator. The synthesizer and metrics
// collector may be nil; without a synthesizer every aggregation uses the
// local formatter.
func NewAggregator(synthesizer ports.Synthesizer, metrics ports.MetricsCollector, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		synthesizer: synthesizer,
		metrics:     metrics,
		logger:      logger,
	}
}

// Aggregate assembles the final response for an execution. When at least one
// step succeeded it asks the synthesizer for a prose answer and falls back to
// the deterministic formatter on any synthesis failure. With zero successes
// it produces the failure narrative locally, without a synthesizer call.
func (a *Aggregator) Aggregate(ctx context.Context, plan *domain.Plan, result *domain.ExecutionResult) *domain.AggregateResult {
	agg := a.base(plan, result)

	if len(result.Succeeded) == 0 {
		agg.Response = a.failureNarrative(plan, result)
		return agg
	}

	if a.synthesizer != nil {
		content, err := a.synthesize(ctx, plan, result, agg)
		if err == nil && strings.TrimSpace(content) != "" {
			agg.Response = content
			return agg
		}
		a.logger.Warn("synthesis failed, using local formatter",
			zap.String("task_id", plan.TaskID),
			zap.Error(err))
		if a.metrics != nil {
			a.metrics.RecordSynthesizerFallback()
		}
	}

	agg.Response = a.format(plan, result, agg)
	return agg
}

// QuickAggregate always uses the deterministic formatter and never calls the
// synthesizer. For callers that want zero extra network calls.
func (a *Aggregator) QuickAggregate(plan *domain.Plan, result *domain.ExecutionResult) *domain.AggregateResult {
	agg := a.base(plan, result)
	if len(result.Succeeded) == 0 {
		agg.Response = a.failureNarrative(plan, result)
		return agg
	}
	agg.Response = a.format(plan, result, agg)
	return agg
}

// base collects the step outputs, errors and the numeric summary shared by
// every aggregation path.
func (a *Aggregator) base(plan *domain.Plan, result *domain.ExecutionResult) *domain.AggregateResult {
	agg := &domain.AggregateResult{
		StepOutputs: make(map[string]string, len(result.Succeeded)),
		Errors:      []string{},
	}

	for _, id := range result.Succeeded {
		agg.StepOutputs[id] = outputPreview(result.Results[id].Output)
	}
	for _, id := range result.Failed {
		agg.Errors = append(agg.Errors, fmt.Sprintf("%s: %s", id, result.Results[id].Error))
	}
	for _, id := range result.Skipped {
		agg.Errors = append(agg.Errors, fmt.Sprintf("%s: %s", id, result.Results[id].Error))
	}

	agg.Summary = fmt.Sprintf("%d/%d steps succeeded, %d failed, %d skipped in %s",
		len(result.Succeeded), len(result.Results),
		len(result.Failed), len(result.Skipped),
		result.TotalDuration.Round(timeRounding))

	return agg
}

// synthesize calls the external synthesizer with the plan summary, bounded
// previews of the successful outputs and an error listing.
func (a *Aggregator) synthesize(ctx context.Context, plan *domain.Plan, result *domain.ExecutionResult, agg *domain.AggregateResult) (content string, err error) {
	// A panicking synthesizer is treated like any other synthesis failure.
	defer func() {
		if r := recover(); r != nil {
			content = ""
			err = fmt.Errorf("synthesizer panic: %v", r)
		}
	}()

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", plan.Summary)
	b.WriteString("Step outputs:\n")
	for _, id := range result.Succeeded {
		step := plan.StepByID(id)
		desc := id
		if step != nil && step.Description != "" {
			desc = fmt.Sprintf("%s (%s)", step.Description, id)
		}
		fmt.Fprintf(&b, "- %s:\n%s\n\n", desc, agg.StepOutputs[id])
	}
	if len(agg.Errors) > 0 {
		b.WriteString("Steps that did not complete:\n")
		for _, e := range agg.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	return a.synthesizer.Synthesize(ctx, synthesisSystemPrompt, b.String())
}

// format is the deterministic local formatter: per-step headings with
// previews, an errors section, then the numeric summary. It must never fail.
func (a *Aggregator) format(plan *domain.Plan, result *domain.ExecutionResult, agg *domain.AggregateResult) string {
	var b strings.Builder
	if plan.Summary != "" {
		fmt.Fprintf(&b, "# %s\n\n", plan.Summary)
	}

	for _, id := range result.Succeeded {
		step := plan.StepByID(id)
		heading := id
		if step != nil && step.Description != "" {
			heading = step.Description
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", heading, agg.StepOutputs[id])
	}

	if len(agg.Errors) > 0 {
		b.WriteString("## Errors\n")
		for _, e := range agg.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n%s\n", agg.Summary)
	return b.String()
}

// failureNarrative describes an execution with zero successful steps. Built
// locally with no synthesizer dependency.
func (a *Aggregator) failureNarrative(plan *domain.Plan, result *domain.ExecutionResult) string {
	var b strings.Builder
	b.WriteString("The task could not be completed: no step finished successfully.\n\n")
	if len(result.Failed) > 0 {
		b.WriteString("Failed steps:\n")
		for _, id := range result.Failed {
			fmt.Fprintf(&b, "- %s: %s\n", id, result.Results[id].Error)
		}
	}
	if len(result.Skipped) > 0 {
		b.WriteString("Skipped steps:\n")
		for _, id := range result.Skipped {
			fmt.Fprintf(&b, "- %s: %s\n", id, result.Results[id].Error)
		}
	}
	return b.String()
}

// outputPreview renders a step output as text, bounded to previewLimit.
func outputPreview(output interface{}) string {
	var text string
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		text = v
	default:
		if data, err := json.Marshal(v); err == nil {
			text = string(data)
		} else {
			text = fmt.Sprintf("%v", v)
		}
	}
	if len(text) > previewLimit {
		return text[:previewLimit] + "... (truncated)"
	}
	return text
}
