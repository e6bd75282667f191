package domain

import (
	"strings"
	"time"
)

// Category classifies the kind of work a step performs. It selects the
// dispatcher behavior (prompting, tooling) for the step.
type Category string

const (
	CategoryResearch Category = "research"
	CategoryAnalysis Category = "analysis"
	CategoryCode     Category = "code"
	CategoryWriting  Category = "writing"
	CategoryGeneral  Category = "general"
)

// KnownCategories lists every valid category value.
var KnownCategories = []Category{
	CategoryResearch,
	CategoryAnalysis,
	CategoryCode,
	CategoryWriting,
	CategoryGeneral,
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	for _, k := range KnownCategories {
		if c == k {
			return true
		}
	}
	return false
}

// categoryKeywords maps trigger words in a task description to a category.
// Used when a plan has to be synthesized without generator help.
var categoryKeywords = map[Category][]string{
	CategoryResearch: {"research", "search", "find", "look up", "investigate", "gather"},
	CategoryAnalysis: {"analyze", "analyse", "compare", "evaluate", "review", "assess"},
	CategoryCode:     {"code", "implement", "fix", "debug", "refactor", "program", "script"},
	CategoryWriting:  {"write", "draft", "compose", "summarize", "summarise", "document"},
}

// InferCategory picks a category by keyword match against the task text.
// Falls back to CategoryGeneral when nothing matches.
func InferCategory(task string) Category {
	lower := strings.ToLower(task)
	for _, c := range []Category{CategoryCode, CategoryResearch, CategoryAnalysis, CategoryWriting} {
		for _, kw := range categoryKeywords[c] {
			if strings.Contains(lower, kw) {
				return c
			}
		}
	}
	return CategoryGeneral
}

// OutputKind describes the shape a step's output is expected to take.
type OutputKind string

const (
	OutputText     OutputKind = "text"
	OutputJSON     OutputKind = "json"
	OutputMarkdown OutputKind = "markdown"
	OutputCode     OutputKind = "code"
)

// IsValid reports whether k is one of the known output kinds.
func (k OutputKind) IsValid() bool {
	switch k {
	case OutputText, OutputJSON, OutputMarkdown, OutputCode:
		return true
	}
	return false
}

// Complexity is a coarse estimate of how demanding a plan is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// IsValid reports whether c is one of the known complexity values.
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// Priority bounds for a step. Values outside the range are clamped during
// plan salvage.
const (
	MinPriority = 1
	MaxPriority = 10
)

// Step is an atomic unit of work inside a plan. Immutable after plan creation.
type Step struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Category     Category   `json:"category"`
	Instructions string     `json:"instructions"`
	DependsOn    []string   `json:"depends_on,omitempty"`
	Priority     int        `json:"priority"`
	OutputKind   OutputKind `json:"output_kind"`
}

// Plan is a DAG of steps describing how to accomplish a task.
type Plan struct {
	TaskID            string        `json:"task_id"`
	Summary           string        `json:"summary"`
	Steps             []Step        `json:"steps"`
	Complexity        Complexity    `json:"complexity"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
}

// StepByID returns the step with the given id, or nil if the plan has none.
func (p *Plan) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// WithEstimate returns a copy of the plan carrying the given duration
// estimate. The receiver is left untouched.
func (p *Plan) WithEstimate(d time.Duration) *Plan {
	clone := *p
	clone.EstimatedDuration = d
	return &clone
}

// DependencyLevel groups the steps that share one dependency depth. Levels
// execute strictly in increasing depth order; steps within a level may run
// concurrently.
type DependencyLevel struct {
	Depth int    `json:"depth"`
	Steps []Step `json:"steps"`
}
