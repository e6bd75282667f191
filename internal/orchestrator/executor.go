package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/ports"
)

// Default executor bounds. Both can be overridden per execution via Options
// and default from config at the wiring level.
const (
	DefaultMaxParallel = 5
	DefaultStepTimeout = 60 * time.Second
)

// Options control a single plan execution.
type Options struct {
	// MaxParallel bounds how many steps of one level run concurrently.
	// Levels with more executable steps are processed in sequential batches
	// of this size.
	MaxParallel int
	// StepTimeout bounds how long the executor waits on a single dispatch.
	// The timeout is soft: the executor stops waiting and records a failure,
	// but does not force-terminate the dispatcher's work.
	StepTimeout time.Duration
	// StopOnError skips every later level once a level produces a failure.
	StopOnError bool
	// TraceID is passed through to the dispatcher. Defaults to the plan's
	// task id, or a fresh uuid when the plan has none.
	TraceID string
	// Observer, when set, is notified on every step transition. Panics in
	// the observer are swallowed and never affect execution.
	Observer ports.ProgressObserver
}

func (o Options) withDefaults(plan *domain.Plan) Options {
	if o.MaxParallel < 1 {
		o.MaxParallel = DefaultMaxParallel
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = DefaultStepTimeout
	}
	if o.TraceID == "" {
		if plan.TaskID != "" {
			o.TraceID = plan.TaskID
		} else {
			o.TraceID = uuid.New().String()
		}
	}
	return o
}

// Executor drives level-synchronous plan execution: skip propagation,
// bounded concurrent dispatch, per-step timeouts and result accumulation.
// The executor is the sole writer of the result map; dispatch outcomes are
// collected in per-batch slots and merged sequentially after each batch
// settles.
type Executor struct {
	dispatcher ports.StepDispatcher
	metrics    ports.MetricsCollector
	logger     *zap.Logger

	validator *Validator
	grouper   *Grouper
}

// NewExecutor creates a plan executor backed by the given dispatcher.
// The metrics collector may be nil.
func NewExecutor(dispatcher ports.StepDispatcher, metrics ports.MetricsCollector, logger *zap.Logger) *Executor {
	return &Executor{
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		validator:  NewValidator(),
		grouper:    NewGrouper(),
	}
}

// Execute runs the plan level by level and returns the accumulated result.
// The only hard error is *ValidationError; every per-step failure, timeout
// and skip is captured inside the ExecutionResult instead.
func (e *Executor) Execute(ctx context.Context, plan *domain.Plan, opts Options) (*domain.ExecutionResult, error) {
	if report := e.validator.Validate(plan); !report.Valid {
		e.logger.Error("plan validation failed",
			zap.String("task_id", plan.TaskID),
			zap.Strings("errors", report.Errors))
		return nil, &ValidationError{Errors: report.Errors}
	}

	opts = opts.withDefaults(plan)
	levels := e.grouper.GroupByLevel(plan)

	e.logger.Info("executing plan",
		zap.String("task_id", plan.TaskID),
		zap.String("trace_id", opts.TraceID),
		zap.Int("steps", len(plan.Steps)),
		zap.Int("levels", len(levels)),
		zap.Int("max_parallel", opts.MaxParallel))

	start := time.Now()
	results := make(map[string]*domain.StepResult, len(plan.Steps))
	stopped := false

	for _, level := range levels {
		if stopped {
			e.skipLevel(level, results, opts, "skipped: earlier level failure")
			continue
		}
		if ctx.Err() != nil {
			e.skipLevel(level, results, opts, "skipped: execution cancelled")
			continue
		}

		runnable := e.partitionLevel(level, results, opts)
		e.runLevel(ctx, runnable, results, opts)

		if opts.StopOnError && levelFailed(level, results) {
			stopped = true
		}
	}

	result := domain.NewExecutionResult(plan, results, time.Since(start))

	status := "completed"
	if !result.AllSucceeded {
		status = "degraded"
	}
	if e.metrics != nil {
		e.metrics.RecordPlanCompleted(status, result.TotalDuration)
	}
	e.logger.Info("plan execution finished",
		zap.String("task_id", plan.TaskID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Duration("duration", result.TotalDuration))

	return result, nil
}

// partitionLevel records a skip for every step with a failed or skipped
// dependency and returns the steps that remain executable. Skip status only
// ever propagates forward: dependencies belong to strictly earlier levels,
// all of which have settled.
func (e *Executor) partitionLevel(level domain.DependencyLevel, results map[string]*domain.StepResult, opts Options) []domain.Step {
	runnable := make([]domain.Step, 0, len(level.Steps))
	for _, step := range level.Steps {
		offending := unmetDependencies(step, results)
		if len(offending) == 0 {
			runnable = append(runnable, step)
			continue
		}
		e.recordSkip(step, results, opts,
			fmt.Sprintf("skipped: dependencies did not complete: %s", strings.Join(offending, ", ")))
	}
	return runnable
}

// runLevel executes the runnable steps of one level in sequential batches of
// at most opts.MaxParallel. Each concurrent dispatch writes its outcome into
// a dedicated slot; a barrier waits for every slot before the batch is
// merged, so no dispatch failure can abort or block its siblings.
func (e *Executor) runLevel(ctx context.Context, runnable []domain.Step, results map[string]*domain.StepResult, opts Options) {
	for offset := 0; offset < len(runnable); offset += opts.MaxParallel {
		end := offset + opts.MaxParallel
		if end > len(runnable) {
			end = len(runnable)
		}
		batch := runnable[offset:end]
		slots := make([]*domain.StepResult, len(batch))

		done := make(chan int, len(batch))
		for i, step := range batch {
			deps := dependencySnapshot(step, results)
			go func(i int, step domain.Step) {
				defer func() { done <- i }()
				e.notify(opts.Observer, step.ID, domain.StepStatusRunning, nil)
				slots[i] = e.dispatchStep(ctx, step, deps, opts)
			}(i, step)
		}
		for range batch {
			<-done
		}

		// Merge sequentially: the executor stays the sole writer of the
		// result map.
		for i, step := range batch {
			res := slots[i]
			if res == nil {
				res = failedResult(step.ID, "dispatcher returned no result", 0)
			}
			results[step.ID] = res
			if e.metrics != nil {
				e.metrics.RecordStepExecuted(string(step.Category), string(res.Status), res.Duration)
			}
			e.notify(opts.Observer, step.ID, res.Status, res)
		}
	}
}

// dispatchStep invokes the dispatcher for one step under a per-step timeout.
// Dispatcher errors, panics and timeouts are all reported identically as a
// failed StepResult. On timeout the executor stops waiting; the step context
// is cancelled so dispatcher implementations may abandon the work, but
// nothing forces them to.
func (e *Executor) dispatchStep(ctx context.Context, step domain.Step, deps map[string]*domain.StepResult, opts Options) *domain.StepResult {
	stepCtx, cancel := context.WithTimeout(ctx, opts.StepTimeout)
	defer cancel()

	type outcome struct {
		res *domain.StepResult
		err error
	}
	ch := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("dispatcher panic: %v", r)}
			}
		}()
		res, err := e.dispatcher.Dispatch(stepCtx, ports.DispatchRequest{
			Step:              step,
			DependencyResults: deps,
			TraceID:           opts.TraceID,
		})
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		elapsed := time.Since(start)
		if out.err != nil {
			e.logger.Warn("step dispatch failed",
				zap.String("step_id", step.ID),
				zap.String("trace_id", opts.TraceID),
				zap.Error(out.err))
			return failedResult(step.ID, out.err.Error(), elapsed)
		}
		if out.res == nil {
			return failedResult(step.ID, "dispatcher returned no result", elapsed)
		}
		res := *out.res
		res.StepID = step.ID
		res.Duration = elapsed
		if res.Success {
			res.Status = domain.StepStatusCompleted
		} else {
			res.Status = domain.StepStatusFailed
			if res.Error == "" {
				res.Error = "step reported failure"
			}
		}
		return &res

	case <-stepCtx.Done():
		elapsed := time.Since(start)
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("step timed out",
				zap.String("step_id", step.ID),
				zap.String("trace_id", opts.TraceID),
				zap.Duration("timeout", opts.StepTimeout))
			return failedResult(step.ID, fmt.Sprintf("step timed out after %s", opts.StepTimeout), elapsed)
		}
		return failedResult(step.ID, "execution cancelled", elapsed)
	}
}

// skipLevel records a skip result for every step in the level without
// invoking the dispatcher.
func (e *Executor) skipLevel(level domain.DependencyLevel, results map[string]*domain.StepResult, opts Options, reason string) {
	for _, step := range level.Steps {
		e.recordSkip(step, results, opts, reason)
	}
}

func (e *Executor) recordSkip(step domain.Step, results map[string]*domain.StepResult, opts Options, reason string) {
	res := &domain.StepResult{
		StepID:   step.ID,
		Status:   domain.StepStatusSkipped,
		Success:  false,
		Error:    reason,
		Duration: 0,
	}
	results[step.ID] = res
	if e.metrics != nil {
		e.metrics.RecordStepExecuted(string(step.Category), string(domain.StepStatusSkipped), 0)
	}
	e.notify(opts.Observer, step.ID, domain.StepStatusSkipped, res)
}

// notify invokes the observer, if any, swallowing panics so a broken
// observer can never affect execution.
func (e *Executor) notify(observer ports.ProgressObserver, stepID string, status domain.StepStatus, result *domain.StepResult) {
	if observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("progress observer panicked",
				zap.String("step_id", stepID),
				zap.Any("panic", r))
		}
	}()
	observer.OnProgress(stepID, status, result)
}

// unmetDependencies returns the ids of the step's direct dependencies that
// failed or were skipped.
func unmetDependencies(step domain.Step, results map[string]*domain.StepResult) []string {
	var offending []string
	for _, dep := range step.DependsOn {
		res, ok := results[dep]
		if !ok {
			// Dependencies always settle in an earlier level; a missing
			// entry means the dependency never ran.
			offending = append(offending, dep)
			continue
		}
		if res.Status == domain.StepStatusFailed || res.Status == domain.StepStatusSkipped {
			offending = append(offending, dep)
		}
	}
	return offending
}

// dependencySnapshot builds the read-only view of dependency results passed
// to the dispatcher. All entries come from strictly earlier, settled levels.
func dependencySnapshot(step domain.Step, results map[string]*domain.StepResult) map[string]*domain.StepResult {
	snapshot := make(map[string]*domain.StepResult, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if res, ok := results[dep]; ok {
			snapshot[dep] = res
		}
	}
	return snapshot
}

func levelFailed(level domain.DependencyLevel, results map[string]*domain.StepResult) bool {
	for _, step := range level.Steps {
		if res, ok := results[step.ID]; ok && res.Status == domain.StepStatusFailed {
			return true
		}
	}
	return false
}

func failedResult(stepID, msg string, d time.Duration) *domain.StepResult {
	return &domain.StepResult{
		StepID:   stepID,
		Status:   domain.StepStatusFailed,
		Success:  false,
		Error:    msg,
		Duration: d,
	}
}
