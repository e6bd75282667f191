package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/planner"
	"github.com/mrioja/flowd/internal/ports"
	"github.com/mrioja/flowd/internal/stats"
)

// Manager coordinates the full task lifecycle: plan generation, validation,
// execution and aggregation. Task state is persisted on every transition and
// events are published for every task and step transition.
type Manager struct {
	generator  *planner.Generator
	executor   *Executor
	aggregator *Aggregator
	validator  *Validator
	eventBus   ports.EventBus
	storage    ports.StateStore
	stats      *stats.Store
	metrics    ports.MetricsCollector
	logger     *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*executionContext

	// Configuration
	defaults    Options
	taskTimeout time.Duration
}

// executionContext holds cancellation state for a single running task.
type executionContext struct {
	taskID     string
	startedAt  time.Time
	cancelFunc context.CancelFunc
}

// NewManager creates a new orchestration manager. The stats store and
// metrics collector may be nil.
func NewManager(
	generator *planner.Generator,
	executor *Executor,
	aggregator *Aggregator,
	eventBus ports.EventBus,
	storage ports.StateStore,
	statsStore *stats.Store,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	defaults Options,
	taskTimeout time.Duration,
) *Manager {
	return &Manager{
		generator:   generator,
		executor:    executor,
		aggregator:  aggregator,
		validator:   NewValidator(),
		eventBus:    eventBus,
		storage:     storage,
		stats:       statsStore,
		metrics:     metrics,
		logger:      logger,
		defaults:    defaults,
		taskTimeout: taskTimeout,
	}
}

// SubmitTask accepts a task description, persists the initial state and
// starts planning and execution in the background. Returns the task id.
func (m *Manager) SubmitTask(ctx context.Context, description string, opts Options) (string, error) {
	if description == "" {
		return "", fmt.Errorf("task description is required")
	}

	taskID := uuid.New().String()
	state := &domain.TaskState{
		TaskID:      taskID,
		Description: description,
		Status:      domain.TaskStatusSubmitted,
		SubmittedAt: time.Now(),
	}

	if err := m.storage.SaveState(ctx, state); err != nil {
		m.logger.Error("failed to save initial state",
			zap.String("task_id", taskID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save state: %w", err)
	}

	m.publishTaskEvent(ctx, taskID, domain.EventTypeTaskSubmitted, map[string]interface{}{
		"description": description,
	})
	if m.metrics != nil {
		m.metrics.RecordPlanSubmitted(string(domain.TaskStatusSubmitted))
	}
	m.logger.Info("task submitted", zap.String("task_id", taskID))

	execCtx := m.trackExecution(taskID)
	go m.runTask(execCtx, taskID, description, m.applyDefaults(opts))

	return taskID, nil
}

// SubmitPlan accepts a caller-built plan, skipping generation. A plan that
// fails validation is rejected synchronously with a *ValidationError; this
// is the only hard error of the execution pipeline.
func (m *Manager) SubmitPlan(ctx context.Context, plan *domain.Plan, opts Options) (string, error) {
	if report := m.validator.Validate(plan); !report.Valid {
		if m.metrics != nil {
			m.metrics.RecordPlanSubmitted(string(domain.TaskStatusFailed))
		}
		return "", &ValidationError{Errors: report.Errors}
	}

	taskID := uuid.New().String()
	stamped := *plan
	stamped.TaskID = taskID

	state := &domain.TaskState{
		TaskID:      taskID,
		Description: stamped.Summary,
		Status:      domain.TaskStatusSubmitted,
		Plan:        &stamped,
		SubmittedAt: time.Now(),
	}
	if err := m.storage.SaveState(ctx, state); err != nil {
		return "", fmt.Errorf("failed to save state: %w", err)
	}

	m.publishTaskEvent(ctx, taskID, domain.EventTypeTaskSubmitted, map[string]interface{}{
		"summary": stamped.Summary,
		"steps":   len(stamped.Steps),
	})
	if m.metrics != nil {
		m.metrics.RecordPlanSubmitted(string(domain.TaskStatusSubmitted))
	}
	m.logger.Info("plan submitted",
		zap.String("task_id", taskID),
		zap.Int("steps", len(stamped.Steps)))

	execCtx := m.trackExecution(taskID)
	go m.executeTask(execCtx, taskID, &stamped, m.applyDefaults(opts))

	return taskID, nil
}

// GetStatus retrieves the current state of a task.
func (m *Manager) GetStatus(ctx context.Context, taskID string) (*domain.TaskState, error) {
	state, err := m.storage.GetState(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return state, nil
}

// ListTasks returns the states of all known tasks.
func (m *Manager) ListTasks(ctx context.Context) ([]*domain.TaskState, error) {
	states, err := m.storage.ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	return states, nil
}

// CancelTask cancels a running task. Steps already dispatched settle on
// their own; unstarted levels are recorded as skipped.
func (m *Manager) CancelTask(ctx context.Context, taskID string) error {
	state, err := m.storage.GetState(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get state: %w", err)
	}
	if state.Status.IsTerminal() {
		return fmt.Errorf("task already in terminal state: %s", state.Status)
	}

	val, ok := m.executions.Load(taskID)
	if !ok {
		return fmt.Errorf("no active execution for task: %s", taskID)
	}
	val.(*executionContext).cancelFunc()

	now := time.Now()
	state.Status = domain.TaskStatusCancelled
	state.CompletedAt = &now
	if err := m.storage.SaveState(ctx, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	m.publishTaskEvent(ctx, taskID, domain.EventTypeTaskCancelled, nil)
	m.logger.Info("task cancelled", zap.String("task_id", taskID))
	return nil
}

// Shutdown cancels every active execution.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestration manager")

	m.executions.Range(func(key, value interface{}) bool {
		value.(*executionContext).cancelFunc()
		return true
	})

	m.logger.Info("orchestration manager shut down complete")
	return nil
}

// runTask drives the planning phase, then hands over to executeTask.
func (m *Manager) runTask(ctx context.Context, taskID, description string, opts Options) {
	m.transition(taskID, func(state *domain.TaskState) {
		state.Status = domain.TaskStatusPlanning
	})

	outcome := m.generator.Generate(ctx, taskID, description)

	// Salvage cannot repair graph-level problems; a generated plan that
	// still fails validation degrades to the fallback plan.
	if report := m.validator.Validate(outcome.Plan); !report.Valid {
		m.logger.Warn("generated plan failed validation, degrading to fallback",
			zap.String("task_id", taskID),
			zap.String("source", string(outcome.Source)),
			zap.Strings("errors", report.Errors))
		issues := append(outcome.Issues, report.Errors...)
		outcome = planner.FallbackOutcome(taskID, description)
		outcome.Issues = issues
	}

	plan := outcome.Plan
	if m.stats != nil {
		if estimate := m.stats.EstimatePlan(plan); estimate > 0 {
			plan = plan.WithEstimate(estimate)
		}
	}

	m.transition(taskID, func(state *domain.TaskState) {
		state.Plan = plan
		state.PlanSource = string(outcome.Source)
		state.StepStatuses = initialStepStatuses(plan)
	})
	m.publishTaskEvent(ctx, taskID, domain.EventTypeTaskPlanned, map[string]interface{}{
		"source": string(outcome.Source),
		"steps":  len(plan.Steps),
		"issues": outcome.Issues,
	})

	m.executeTask(ctx, taskID, plan, opts)
}

// executeTask runs a validated plan and aggregates the outcome.
func (m *Manager) executeTask(ctx context.Context, taskID string, plan *domain.Plan, opts Options) {
	// Cancelling on the way out releases the task timeout timer; deleting
	// the entry alone would keep it alive until the deadline.
	defer func() {
		if val, ok := m.executions.LoadAndDelete(taskID); ok {
			val.(*executionContext).cancelFunc()
		}
	}()

	now := time.Now()
	m.transition(taskID, func(state *domain.TaskState) {
		state.Status = domain.TaskStatusRunning
		state.StartedAt = &now
		if state.StepStatuses == nil {
			state.StepStatuses = initialStepStatuses(plan)
		}
	})
	m.publishTaskEvent(ctx, taskID, domain.EventTypeTaskStarted, nil)

	opts.Observer = &taskObserver{manager: m, taskID: taskID, plan: plan}
	result, err := m.executor.Execute(ctx, plan, opts)
	if err != nil {
		m.failTask(taskID, err)
		return
	}

	// Aggregation survives a cancelled task context: the deterministic
	// formatter needs no external calls.
	aggregate := m.aggregator.Aggregate(ctx, plan, result)

	done := time.Now()
	status := domain.TaskStatusCompleted
	if ctx.Err() != nil {
		status = domain.TaskStatusCancelled
	}
	m.transition(taskID, func(state *domain.TaskState) {
		state.Status = status
		state.Result = result
		state.Aggregate = aggregate
		state.CompletedAt = &done
	})

	eventType := domain.EventTypeTaskCompleted
	if status == domain.TaskStatusCancelled {
		eventType = domain.EventTypeTaskCancelled
	}
	m.publishTaskEvent(context.Background(), taskID, eventType, map[string]interface{}{
		"all_succeeded": result.AllSucceeded,
		"succeeded":     len(result.Succeeded),
		"failed":        len(result.Failed),
		"skipped":       len(result.Skipped),
	})

	m.logger.Info("task finished",
		zap.String("task_id", taskID),
		zap.String("status", string(status)),
		zap.Bool("all_succeeded", result.AllSucceeded))
}

// failTask marks a task failed. Reached only for plan validation failures;
// per-step failures are captured inside the execution result instead.
func (m *Manager) failTask(taskID string, err error) {
	now := time.Now()
	m.transition(taskID, func(state *domain.TaskState) {
		state.Status = domain.TaskStatusFailed
		state.Error = err.Error()
		state.CompletedAt = &now
	})
	m.publishTaskEvent(context.Background(), taskID, domain.EventTypeTaskFailed, map[string]interface{}{
		"error": err.Error(),
	})
	m.logger.Error("task failed", zap.String("task_id", taskID), zap.Error(err))
}

// trackExecution registers a cancellable context for a task.
func (m *Manager) trackExecution(taskID string) context.Context {
	execCtx, cancel := context.WithTimeout(context.Background(), m.taskTimeout)
	m.executions.Store(taskID, &executionContext{
		taskID:     taskID,
		startedAt:  time.Now(),
		cancelFunc: cancel,
	})
	return execCtx
}

// transition applies a mutation to the persisted task state.
func (m *Manager) transition(taskID string, mutate func(*domain.TaskState)) {
	ctx := context.Background()
	state, err := m.storage.GetState(ctx, taskID)
	if err != nil {
		m.logger.Error("failed to load state for transition",
			zap.String("task_id", taskID),
			zap.Error(err))
		return
	}
	mutate(state)
	if err := m.storage.SaveState(ctx, state); err != nil {
		m.logger.Error("failed to save state transition",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

func (m *Manager) applyDefaults(opts Options) Options {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = m.defaults.MaxParallel
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = m.defaults.StepTimeout
	}
	return opts
}

func (m *Manager) publishTaskEvent(ctx context.Context, taskID string, eventType domain.EventType, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := m.eventBus.Publish(ctx, domain.TopicTaskEvents, event); err != nil {
		m.logger.Error("failed to publish task event",
			zap.String("task_id", taskID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func initialStepStatuses(plan *domain.Plan) map[string]domain.StepStatus {
	statuses := make(map[string]domain.StepStatus, len(plan.Steps))
	for _, step := range plan.Steps {
		statuses[step.ID] = domain.StepStatusPending
	}
	return statuses
}

// taskObserver bridges executor progress into persisted state, step events
// and category statistics. The executor swallows any panic it raises.
type taskObserver struct {
	manager *Manager
	taskID  string
	plan    *domain.Plan

	// Serializes state transitions: steps in the same batch report
	// concurrently, and transition is a read-modify-write.
	mu sync.Mutex
}

func (o *taskObserver) OnProgress(stepID string, status domain.StepStatus, result *domain.StepResult) {
	m := o.manager

	o.mu.Lock()
	m.transition(o.taskID, func(state *domain.TaskState) {
		if state.StepStatuses == nil {
			state.StepStatuses = make(map[string]domain.StepStatus)
		}
		state.StepStatuses[stepID] = status
	})
	o.mu.Unlock()

	var eventType domain.EventType
	switch status {
	case domain.StepStatusRunning:
		eventType = domain.EventTypeStepStarted
	case domain.StepStatusCompleted:
		eventType = domain.EventTypeStepCompleted
	case domain.StepStatusFailed:
		eventType = domain.EventTypeStepFailed
	case domain.StepStatusSkipped:
		eventType = domain.EventTypeStepSkipped
	default:
		return
	}

	data := map[string]interface{}{}
	if result != nil {
		data["success"] = result.Success
		data["duration_ms"] = result.Duration.Milliseconds()
		if result.Error != "" {
			data["error"] = result.Error
		}
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TaskID:    o.taskID,
		StepID:    stepID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := m.eventBus.Publish(context.Background(), domain.TopicStepEvents, event); err != nil {
		m.logger.Error("failed to publish step event",
			zap.String("task_id", o.taskID),
			zap.String("step_id", stepID),
			zap.Error(err))
	}

	// Skips carry no execution time and would distort the averages.
	if m.stats != nil && result != nil &&
		(status == domain.StepStatusCompleted || status == domain.StepStatusFailed) {
		if step := o.plan.StepByID(stepID); step != nil {
			m.stats.Record(step.Category, result.Success, result.Duration)
		}
	}
}
