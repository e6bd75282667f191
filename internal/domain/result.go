package domain

import "time"

// StepStatus is the lifecycle state of a single step during execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether the step has settled.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

// TokenUsage carries LLM token accounting for a step.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// StepResult is the outcome of one step. Exactly one StepResult exists per
// step per execution.
type StepResult struct {
	StepID   string        `json:"step_id"`
	Status   StepStatus    `json:"status"`
	Success  bool          `json:"success"`
	Output   interface{}   `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Usage    *TokenUsage   `json:"usage,omitempty"`
}

// ExecutionResult is the accumulated outcome of executing a plan.
type ExecutionResult struct {
	TaskID        string                 `json:"task_id"`
	Results       map[string]*StepResult `json:"results"`
	Succeeded     []string               `json:"succeeded"`
	Failed        []string               `json:"failed"`
	Skipped       []string               `json:"skipped"`
	TotalDuration time.Duration          `json:"total_duration"`
	AllSucceeded  bool                   `json:"all_succeeded"`
}

// NewExecutionResult derives the succeeded/failed/skipped lists from the
// result map, iterating steps in plan order so the lists are deterministic.
func NewExecutionResult(plan *Plan, results map[string]*StepResult, total time.Duration) *ExecutionResult {
	er := &ExecutionResult{
		TaskID:        plan.TaskID,
		Results:       results,
		Succeeded:     []string{},
		Failed:        []string{},
		Skipped:       []string{},
		TotalDuration: total,
	}

	for _, step := range plan.Steps {
		res, ok := results[step.ID]
		if !ok {
			continue
		}
		switch res.Status {
		case StepStatusCompleted:
			er.Succeeded = append(er.Succeeded, step.ID)
		case StepStatusFailed:
			er.Failed = append(er.Failed, step.ID)
		case StepStatusSkipped:
			er.Skipped = append(er.Skipped, step.ID)
		}
	}

	er.AllSucceeded = len(er.Failed) == 0 && len(er.Skipped) == 0 && len(er.Succeeded) == len(plan.Steps)
	return er
}

// AggregateResult is the final response assembled from an execution.
type AggregateResult struct {
	Response    string            `json:"response"`
	Summary     string            `json:"summary"`
	StepOutputs map[string]string `json:"step_outputs"`
	Errors      []string          `json:"errors"`
}
