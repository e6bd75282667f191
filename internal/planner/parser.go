package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mrioja/flowd/internal/domain"
)

// Source tags how a plan was obtained from generator output.
type Source string

const (
	// SourceParsed means the output passed the strict schema check untouched.
	SourceParsed Source = "parsed"
	// SourceSalvaged means the output was repaired field by field.
	SourceSalvaged Source = "salvaged"
	// SourceFallback means nothing usable was found and a canonical
	// single-step plan was synthesized from the task text.
	SourceFallback Source = "fallback"
)

// Outcome is the result of turning generator output into a plan. The three
// paths (strict parse, salvage, fallback) are kept separate so each is
// independently testable; Plan is never nil.
type Outcome struct {
	Plan   *domain.Plan
	Source Source
	// Issues lists what salvage had to repair, empty for the other sources.
	Issues []string
}

// rawPlan mirrors the JSON shape the generator is prompted to produce.
type rawPlan struct {
	Summary    string    `json:"summary"`
	Complexity string    `json:"complexity"`
	Steps      []rawStep `json:"steps"`
}

type rawStep struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Instructions string   `json:"instructions"`
	DependsOn    []string `json:"depends_on"`
	Priority     int      `json:"priority"`
	OutputKind   string   `json:"output_kind"`
}

// maxSalvagedSteps bounds how many steps a salvaged plan may keep.
const maxSalvagedSteps = 25

// ParsePlan turns raw generator output into a plan. It tries a strict parse
// first, then a field-by-field salvage clamped to valid enum values and
// lengths, and finally degrades to the single-step fallback. It never fails.
func ParsePlan(taskID, task, raw string) Outcome {
	rp, ok := extractJSON(raw)
	if !ok {
		return FallbackOutcome(taskID, task)
	}

	if plan, strict := strictPlan(taskID, rp); strict {
		return Outcome{Plan: plan, Source: SourceParsed}
	}

	plan, issues := salvagePlan(taskID, task, rp)
	if plan == nil {
		out := FallbackOutcome(taskID, task)
		out.Issues = issues
		return out
	}
	return Outcome{Plan: plan, Source: SourceSalvaged, Issues: issues}
}

// FallbackOutcome builds the canonical single-step plan: one step, no
// dependencies, category inferred by keyword match against the task text.
func FallbackOutcome(taskID, task string) Outcome {
	plan := &domain.Plan{
		TaskID:     taskID,
		Summary:    task,
		Complexity: domain.ComplexitySimple,
		Steps: []domain.Step{
			{
				ID:           "step-1",
				Description:  "Complete the task directly",
				Category:     domain.InferCategory(task),
				Instructions: task,
				Priority:     domain.MaxPriority,
				OutputKind:   domain.OutputText,
			},
		},
	}
	return Outcome{Plan: plan, Source: SourceFallback}
}

// extractJSON pulls the first top-level JSON object out of free-form text.
// Generators often wrap the payload in prose or code fences.
func extractJSON(raw string) (rawPlan, bool) {
	var rp rawPlan
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return rp, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rp); err != nil {
		return rp, false
	}
	return rp, true
}

// strictPlan accepts the raw plan only if every field is already valid.
func strictPlan(taskID string, rp rawPlan) (*domain.Plan, bool) {
	if rp.Summary == "" || len(rp.Steps) == 0 {
		return nil, false
	}
	if !domain.Complexity(rp.Complexity).IsValid() {
		return nil, false
	}

	seen := make(map[string]bool, len(rp.Steps))
	steps := make([]domain.Step, 0, len(rp.Steps))
	for _, rs := range rp.Steps {
		if rs.ID == "" || seen[rs.ID] || rs.Instructions == "" {
			return nil, false
		}
		if !domain.Category(rs.Category).IsValid() || !domain.OutputKind(rs.OutputKind).IsValid() {
			return nil, false
		}
		if rs.Priority < domain.MinPriority || rs.Priority > domain.MaxPriority {
			return nil, false
		}
		seen[rs.ID] = true
		steps = append(steps, domain.Step{
			ID:           rs.ID,
			Description:  rs.Description,
			Category:     domain.Category(rs.Category),
			Instructions: rs.Instructions,
			DependsOn:    rs.DependsOn,
			Priority:     rs.Priority,
			OutputKind:   domain.OutputKind(rs.OutputKind),
		})
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] || dep == s.ID {
				return nil, false
			}
		}
	}

	return &domain.Plan{
		TaskID:     taskID,
		Summary:    rp.Summary,
		Complexity: domain.Complexity(rp.Complexity),
		Steps:      steps,
	}, true
}

// salvagePlan repairs what it can: missing ids are synthesized, enum values
// are clamped to valid ones, priorities are clamped to range, the step list
// is bounded, and dangling dependency references are dropped. Steps without
// instructions cannot be repaired and are discarded. Returns nil when no
// step survives.
func salvagePlan(taskID, task string, rp rawPlan) (*domain.Plan, []string) {
	var issues []string

	summary := rp.Summary
	if summary == "" {
		summary = task
		issues = append(issues, "missing summary, using task text")
	}

	complexity := domain.Complexity(rp.Complexity)
	if !complexity.IsValid() {
		complexity = domain.ComplexityModerate
		issues = append(issues, fmt.Sprintf("invalid complexity %q, clamped to %s", rp.Complexity, complexity))
	}

	rawSteps := rp.Steps
	if len(rawSteps) > maxSalvagedSteps {
		rawSteps = rawSteps[:maxSalvagedSteps]
		issues = append(issues, fmt.Sprintf("step list truncated to %d entries", maxSalvagedSteps))
	}

	seen := make(map[string]bool, len(rawSteps))
	steps := make([]domain.Step, 0, len(rawSteps))
	for i, rs := range rawSteps {
		if strings.TrimSpace(rs.Instructions) == "" {
			issues = append(issues, fmt.Sprintf("step %d dropped: no instructions", i))
			continue
		}

		id := rs.ID
		if id == "" || seen[id] {
			id = fmt.Sprintf("step-%d", i+1)
			issues = append(issues, fmt.Sprintf("step %d assigned id %s", i, id))
		}
		if seen[id] {
			issues = append(issues, fmt.Sprintf("step %d dropped: duplicate id %s", i, id))
			continue
		}
		seen[id] = true

		category := domain.Category(strings.ToLower(rs.Category))
		if !category.IsValid() {
			category = domain.InferCategory(rs.Instructions)
			issues = append(issues, fmt.Sprintf("step %s: invalid category %q, inferred %s", id, rs.Category, category))
		}

		kind := domain.OutputKind(strings.ToLower(rs.OutputKind))
		if !kind.IsValid() {
			kind = domain.OutputText
		}

		priority := rs.Priority
		if priority < domain.MinPriority {
			priority = domain.MinPriority
		}
		if priority > domain.MaxPriority {
			priority = domain.MaxPriority
		}
		if priority != rs.Priority {
			issues = append(issues, fmt.Sprintf("step %s: priority %d clamped to %d", id, rs.Priority, priority))
		}

		steps = append(steps, domain.Step{
			ID:           id,
			Description:  rs.Description,
			Category:     category,
			Instructions: rs.Instructions,
			DependsOn:    rs.DependsOn,
			Priority:     priority,
			OutputKind:   kind,
		})
	}

	if len(steps) == 0 {
		return nil, append(issues, "no usable steps, degrading to fallback plan")
	}

	// Drop dependency references that no longer resolve (dropped steps,
	// self-references, generator hallucinations).
	for i := range steps {
		kept := steps[i].DependsOn[:0]
		for _, dep := range steps[i].DependsOn {
			if seen[dep] && dep != steps[i].ID {
				kept = append(kept, dep)
			} else {
				issues = append(issues, fmt.Sprintf("step %s: dropped unresolvable dependency %q", steps[i].ID, dep))
			}
		}
		steps[i].DependsOn = kept
	}

	return &domain.Plan{
		TaskID:     taskID,
		Summary:    summary,
		Complexity: complexity,
		Steps:      steps,
	}, issues
}
