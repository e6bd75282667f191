// Package orchestrator implements the task orchestration core.
//
// The pipeline is: candidate plan -> Validator -> Grouper -> Executor ->
// Aggregator. The validator accumulates every structural violation
// (unresolved references, self-dependencies, cycles); the grouper computes
// dependency depths and priority-sorted levels; the executor runs levels in
// strict depth order with bounded parallelism, per-step soft timeouts, fault
// isolation between siblings and forward-only skip propagation; the
// aggregator assembles the final response with a deterministic local
// fallback.
//
// The Manager couples the pipeline to plan generation, state storage, the
// event bus and category statistics, and owns the task lifecycle.
package orchestrator
