package orchestrator

import (
	"fmt"
	"strings"

	"github.com/mrioja/flowd/internal/domain"
)

// Report is the outcome of validating a plan. All violations are accumulated
// rather than short-circuiting on the first one.
type Report struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidationError is the only hard error the executor surfaces: the plan was
// structurally broken and execution never started.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed: %s", strings.Join(e.Errors, "; "))
}

// Validator checks the structural correctness of a plan: unique ids,
// resolvable dependencies, no self-dependencies and no cycles.
type Validator struct{}

// NewValidator creates a new plan validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate inspects the plan and returns a report. It never returns an error
// itself; a plan with any reported violation must not reach the executor.
func (v *Validator) Validate(p *domain.Plan) Report {
	var errs []string

	if p == nil {
		return Report{Valid: false, Errors: []string{"plan is nil"}}
	}
	if len(p.Steps) == 0 {
		errs = append(errs, "plan must have at least one step")
	}

	// Check ids and build the lookup used by the dependency checks.
	byID := make(map[string]*domain.Step, len(p.Steps))
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.ID == "" {
			errs = append(errs, fmt.Sprintf("step %d has an empty id", i))
			continue
		}
		if _, dup := byID[step.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate step id: %s", step.ID))
			continue
		}
		byID[step.ID] = step
	}

	// Check dependency references and self-dependencies.
	for i := range p.Steps {
		step := &p.Steps[i]
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				errs = append(errs, fmt.Sprintf("step %s depends on itself", step.ID))
				continue
			}
			if _, ok := byID[dep]; !ok {
				errs = append(errs, fmt.Sprintf("step %s depends on unknown step %s", step.ID, dep))
			}
		}
	}

	if cycle := findCycle(p.Steps, byID); len(cycle) > 0 {
		errs = append(errs, fmt.Sprintf("circular dependencies detected: %s", strings.Join(cycle, " -> ")))
	}

	return Report{Valid: len(errs) == 0, Errors: errs}
}

// dfsFrame is one entry of the explicit traversal stack. Iterative DFS keeps
// stack usage bounded regardless of dependency chain length.
type dfsFrame struct {
	id   string
	next int // index of the next dependency to visit
}

// findCycle runs an iterative depth-first traversal over the dependency
// edges. A step revisited while still on the traversal stack signals a
// cycle; the returned slice names the participating step ids in edge order,
// closing with the repeated id. Returns nil when the plan is cycle-free.
func findCycle(steps []domain.Step, byID map[string]*domain.Step) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the traversal stack
		black = 2 // fully explored
	)
	colors := make(map[string]int, len(steps))

	for i := range steps {
		root := steps[i].ID
		if colors[root] != white {
			continue
		}

		stack := []dfsFrame{{id: root}}
		colors[root] = gray

		for len(stack) > 0 {
			frame := &stack[len(stack)-1]
			step := byID[frame.id]

			advanced := false
			for frame.next < len(step.DependsOn) {
				dep := step.DependsOn[frame.next]
				frame.next++

				// Unresolved refs and self-deps are reported separately.
				if _, ok := byID[dep]; !ok || dep == frame.id {
					continue
				}

				switch colors[dep] {
				case gray:
					// Back edge: extract the cycle from the stack.
					start := 0
					for j := range stack {
						if stack[j].id == dep {
							start = j
							break
						}
					}
					cycle := make([]string, 0, len(stack)-start+1)
					for j := start; j < len(stack); j++ {
						cycle = append(cycle, stack[j].id)
					}
					return append(cycle, dep)
				case white:
					colors[dep] = gray
					stack = append(stack, dfsFrame{id: dep})
					advanced = true
				}
				if advanced {
					break
				}
			}

			if !advanced && frame.next >= len(step.DependsOn) {
				colors[frame.id] = black
				stack = stack[:len(stack)-1]
			}
		}
	}

	return nil
}
