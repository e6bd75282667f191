package orchestrator

import (
	"sort"

	"github.com/mrioja/flowd/internal/domain"
)

// Grouper computes dependency depths and groups steps into ordered levels.
// It assumes a validated, cycle-free plan; run the Validator first.
type Grouper struct{}

// NewGrouper creates a new dependency grouper.
func NewGrouper() *Grouper {
	return &Grouper{}
}

// Depths returns the dependency depth of every step: 0 for steps without
// dependencies, otherwise 1 + the maximum depth among its dependencies.
// Depths are computed iteratively with an explicit stack so long chains do
// not grow the call stack.
func (g *Grouper) Depths(p *domain.Plan) map[string]int {
	byID := make(map[string]*domain.Step, len(p.Steps))
	for i := range p.Steps {
		byID[p.Steps[i].ID] = &p.Steps[i]
	}

	depths := make(map[string]int, len(p.Steps))
	for i := range p.Steps {
		if _, done := depths[p.Steps[i].ID]; done {
			continue
		}

		stack := []string{p.Steps[i].ID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			if _, done := depths[id]; done {
				stack = stack[:len(stack)-1]
				continue
			}

			step := byID[id]
			max := -1
			ready := true
			for _, dep := range step.DependsOn {
				d, ok := depths[dep]
				if !ok {
					ready = false
					stack = append(stack, dep)
					continue
				}
				if d > max {
					max = d
				}
			}

			if ready {
				depths[id] = max + 1
				// The frame may no longer be on top after pushes; it is,
				// because pushes only happen when not ready.
				stack = stack[:len(stack)-1]
			}
		}
	}

	return depths
}

// GroupByLevel groups the plan's steps into ordered dependency levels.
// Level i holds every step of depth i. Within a level, steps are sorted by
// descending priority; ties keep the plan's original order (stable sort).
// Grouping the same plan twice yields identical membership and ordering.
func (g *Grouper) GroupByLevel(p *domain.Plan) []domain.DependencyLevel {
	depths := g.Depths(p)

	maxDepth := 0
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	buckets := make([][]domain.Step, maxDepth+1)
	for _, step := range p.Steps {
		d := depths[step.ID]
		buckets[d] = append(buckets[d], step)
	}

	levels := make([]domain.DependencyLevel, 0, maxDepth+1)
	for depth, steps := range buckets {
		if len(steps) == 0 {
			continue
		}
		sort.SliceStable(steps, func(a, b int) bool {
			return steps[a].Priority > steps[b].Priority
		})
		levels = append(levels, domain.DependencyLevel{Depth: depth, Steps: steps})
	}

	return levels
}
