package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/ports"
)

// Generator produces execution plans from task descriptions using an LLM,
// degrading through salvage to the single-step fallback so that task
// submission never fails on bad generator output.
//
// The generator only guarantees field-level soundness; graph-level checks
// (cycles, unresolved references that salvage could not repair) belong to
// the plan validator, which the manager runs before execution.
type Generator struct {
	llm     ports.LLMClient
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewGenerator creates a plan generator. The metrics collector may be nil.
func NewGenerator(llm ports.LLMClient, metrics ports.MetricsCollector, logger *zap.Logger) *Generator {
	return &Generator{
		llm:     llm,
		metrics: metrics,
		logger:  logger,
	}
}

// Generate decomposes the task into a plan. LLM failures and malformed
// output degrade to the fallback plan; the returned outcome always carries a
// usable plan.
func (g *Generator) Generate(ctx context.Context, taskID, task string) Outcome {
	outcome := g.generate(ctx, taskID, task)

	if g.metrics != nil {
		g.metrics.RecordPlanSource(string(outcome.Source))
	}
	g.logger.Info("plan generated",
		zap.String("task_id", taskID),
		zap.String("source", string(outcome.Source)),
		zap.Int("steps", len(outcome.Plan.Steps)),
		zap.Int("issues", len(outcome.Issues)))

	return outcome
}

func (g *Generator) generate(ctx context.Context, taskID, task string) Outcome {
	if g.llm == nil {
		return FallbackOutcome(taskID, task)
	}

	completion, err := g.llm.Complete(ctx, generatorSystemPrompt, fmt.Sprintf(generatorUserPromptFormat, task))
	if err != nil {
		g.logger.Warn("plan generation call failed, degrading to fallback",
			zap.String("task_id", taskID),
			zap.Error(err))
		return FallbackOutcome(taskID, task)
	}

	return ParsePlan(taskID, task, completion.Content)
}
