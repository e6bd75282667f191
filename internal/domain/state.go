package domain

import "time"

// TaskStatus is the lifecycle state of a submitted task.
type TaskStatus string

const (
	TaskStatusSubmitted TaskStatus = "submitted"
	TaskStatusPlanning  TaskStatus = "planning"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the task has reached a final state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// TaskState is the persisted view of a task: the plan, per-step statuses and
// the final result once execution settles.
type TaskState struct {
	TaskID       string                `json:"task_id"`
	Description  string                `json:"description"`
	Status       TaskStatus            `json:"status"`
	PlanSource   string                `json:"plan_source,omitempty"`
	Plan         *Plan                 `json:"plan,omitempty"`
	StepStatuses map[string]StepStatus `json:"step_statuses,omitempty"`
	Result       *ExecutionResult      `json:"result,omitempty"`
	Aggregate    *AggregateResult      `json:"aggregate,omitempty"`
	Error        string                `json:"error,omitempty"`
	SubmittedAt  time.Time             `json:"submitted_at"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// CategoryStats accumulates execution statistics for one step category. The
// stats store uses these to estimate plan durations.
type CategoryStats struct {
	Executions    int64         `json:"executions"`
	Failures      int64         `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Average returns the mean step duration, or zero when nothing was recorded.
func (s *CategoryStats) Average() time.Duration {
	if s == nil || s.Executions == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Executions)
}
