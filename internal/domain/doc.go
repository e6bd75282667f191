// Package domain holds the core types shared across the orchestrator:
// plans, steps, step results, execution results, task state and events.
//
// Values of these types are treated as immutable once created. A Plan is
// never mutated in place; anything that changes a plan produces a new one.
package domain
