// Package planner turns free-form task descriptions into execution plans.
//
// Generator output is handled as a tagged outcome: a strict schema check
// first (Parsed), then a field-by-field repair clamped to valid enum values
// and lengths (Salvaged), and finally a canonical single-step plan inferred
// from the task text (Fallback). Malformed generator output therefore never
// aborts the pipeline.
package planner
