package planner

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mrioja/flowd/internal/domain"
)

const validPlanJSON = `{
	"summary": "Research and summarize",
	"complexity": "moderate",
	"steps": [
		{
			"id": "research",
			"description": "Gather sources",
			"category": "research",
			"instructions": "Find relevant material",
			"priority": 8,
			"output_kind": "text"
		},
		{
			"id": "summarize",
			"description": "Write the summary",
			"category": "writing",
			"instructions": "Summarize the findings",
			"depends_on": ["research"],
			"priority": 5,
			"output_kind": "markdown"
		}
	]
}`

func TestParsePlanStrict(t *testing.T) {
	out := ParsePlan("task-1", "research and summarize", validPlanJSON)

	if out.Source != SourceParsed {
		t.Fatalf("source = %s, want parsed (issues: %v)", out.Source, out.Issues)
	}
	if out.Plan.TaskID != "task-1" {
		t.Errorf("task id = %s", out.Plan.TaskID)
	}
	if len(out.Plan.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(out.Plan.Steps))
	}
	if out.Plan.Steps[1].DependsOn[0] != "research" {
		t.Errorf("dependency not preserved: %v", out.Plan.Steps[1].DependsOn)
	}
	if len(out.Issues) != 0 {
		t.Errorf("strict parse should report no issues, got %v", out.Issues)
	}
}

func TestParsePlanStripsSurroundingProse(t *testing.T) {
	raw := "Here is the plan you asked for:\n```json\n" + validPlanJSON + "\n```\nLet me know!"

	out := ParsePlan("task-1", "task", raw)
	if out.Source != SourceParsed {
		t.Fatalf("source = %s, want parsed", out.Source)
	}
}

func TestParsePlanSalvagesRepairableOutput(t *testing.T) {
	raw := `{
		"complexity": "extreme",
		"steps": [
			{"description": "first", "category": "RESEARCH", "instructions": "look things up", "priority": 99},
			{"id": "second", "category": "nonsense", "instructions": "analyze the findings", "priority": 0, "depends_on": ["step-1", "ghost"]}
		]
	}`

	out := ParsePlan("task-1", "my task", raw)
	if out.Source != SourceSalvaged {
		t.Fatalf("source = %s, want salvaged (issues: %v)", out.Source, out.Issues)
	}
	if len(out.Issues) == 0 {
		t.Fatal("salvage must report what it repaired")
	}

	plan := out.Plan
	if plan.Summary != "my task" {
		t.Errorf("summary = %q, want task text", plan.Summary)
	}
	if plan.Complexity != domain.ComplexityModerate {
		t.Errorf("complexity = %s, want moderate", plan.Complexity)
	}

	first := plan.Steps[0]
	if first.ID != "step-1" {
		t.Errorf("synthesized id = %s, want step-1", first.ID)
	}
	if first.Category != domain.CategoryResearch {
		t.Errorf("category = %s, want research (case-folded)", first.Category)
	}
	if first.Priority != domain.MaxPriority {
		t.Errorf("priority = %d, want clamped to %d", first.Priority, domain.MaxPriority)
	}
	if first.OutputKind != domain.OutputText {
		t.Errorf("output kind = %s, want text default", first.OutputKind)
	}

	second := plan.Steps[1]
	if second.Priority != domain.MinPriority {
		t.Errorf("priority = %d, want clamped to %d", second.Priority, domain.MinPriority)
	}
	// Category "nonsense" is inferred from the instructions.
	if second.Category != domain.CategoryAnalysis {
		t.Errorf("category = %s, want analysis", second.Category)
	}
	// The resolvable reference survives, the hallucinated one is dropped.
	if len(second.DependsOn) != 1 || second.DependsOn[0] != "step-1" {
		t.Errorf("depends_on = %v, want [step-1]", second.DependsOn)
	}
}

func TestParsePlanDropsInstructionlessSteps(t *testing.T) {
	raw := `{
		"summary": "plan",
		"complexity": "simple",
		"steps": [
			{"id": "good", "category": "general", "instructions": "do the thing", "priority": 5, "output_kind": "text"},
			{"id": "bad", "category": "general", "instructions": "   ", "priority": 5, "output_kind": "text"}
		]
	}`

	out := ParsePlan("task-1", "task", raw)
	if out.Source != SourceSalvaged {
		t.Fatalf("source = %s, want salvaged", out.Source)
	}
	if len(out.Plan.Steps) != 1 || out.Plan.Steps[0].ID != "good" {
		t.Errorf("steps = %+v, want only the usable step", out.Plan.Steps)
	}
}

func TestParsePlanTruncatesOversizedStepList(t *testing.T) {
	var steps []string
	for i := 0; i < maxSalvagedSteps+10; i++ {
		steps = append(steps, fmt.Sprintf(`{"instructions": "work item %d"}`, i))
	}
	raw := fmt.Sprintf(`{"steps": [%s]}`, strings.Join(steps, ","))

	out := ParsePlan("task-1", "task", raw)
	if out.Source != SourceSalvaged {
		t.Fatalf("source = %s, want salvaged", out.Source)
	}
	if len(out.Plan.Steps) != maxSalvagedSteps {
		t.Errorf("steps = %d, want %d", len(out.Plan.Steps), maxSalvagedSteps)
	}
}

func TestParsePlanFallbackOnGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here at all",
		"{not valid json",
		`{"summary": "x", "complexity": "simple", "steps": []}`,
	} {
		out := ParsePlan("task-1", "fix the login bug", raw)
		if out.Source != SourceFallback {
			t.Errorf("raw %q: source = %s, want fallback", raw, out.Source)
			continue
		}
		if len(out.Plan.Steps) != 1 {
			t.Errorf("fallback plan should have one step, got %d", len(out.Plan.Steps))
		}
	}
}

func TestFallbackOutcomeShape(t *testing.T) {
	out := FallbackOutcome("task-9", "fix the login bug")

	plan := out.Plan
	if plan.TaskID != "task-9" {
		t.Errorf("task id = %s", plan.TaskID)
	}
	if plan.Complexity != domain.ComplexitySimple {
		t.Errorf("complexity = %s, want simple", plan.Complexity)
	}

	s := plan.Steps[0]
	if s.ID != "step-1" {
		t.Errorf("id = %s, want step-1", s.ID)
	}
	if len(s.DependsOn) != 0 {
		t.Errorf("fallback step must have no dependencies, got %v", s.DependsOn)
	}
	if s.Priority != domain.MaxPriority {
		t.Errorf("priority = %d, want %d", s.Priority, domain.MaxPriority)
	}
	// "fix" is a code keyword.
	if s.Category != domain.CategoryCode {
		t.Errorf("category = %s, want code", s.Category)
	}
	if s.Instructions != "fix the login bug" {
		t.Errorf("instructions = %q", s.Instructions)
	}
}

func TestInferCategoryKeywords(t *testing.T) {
	cases := []struct {
		task string
		want domain.Category
	}{
		{"research the history of Go", domain.CategoryResearch},
		{"analyze these benchmark numbers", domain.CategoryAnalysis},
		{"implement a rate limiter", domain.CategoryCode},
		{"write a project update", domain.CategoryWriting},
		{"make me a sandwich", domain.CategoryGeneral},
	}
	for _, tc := range cases {
		if got := domain.InferCategory(tc.task); got != tc.want {
			t.Errorf("InferCategory(%q) = %s, want %s", tc.task, got, tc.want)
		}
	}
}
