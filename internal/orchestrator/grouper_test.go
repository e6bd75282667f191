package orchestrator

import (
	"reflect"
	"testing"

	"github.com/mrioja/flowd/internal/domain"
)

func TestDepths(t *testing.T) {
	plan := makePlan(
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	)

	depths := NewGrouper().Depths(plan)

	want := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}
	if !reflect.DeepEqual(depths, want) {
		t.Errorf("depths = %v, want %v", depths, want)
	}
}

func TestDepthsDiamondWithLongSide(t *testing.T) {
	// d's depth follows its deepest dependency chain.
	plan := makePlan(
		step("a"),
		step("b", "a"),
		step("c", "b"),
		step("d", "a", "c"),
	)

	depths := NewGrouper().Depths(plan)
	if depths["d"] != 3 {
		t.Errorf("depth(d) = %d, want 3", depths["d"])
	}
}

func TestGroupByLevelMembershipAndOrder(t *testing.T) {
	plan := makePlan(
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	)

	levels := NewGrouper().GroupByLevel(plan)
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}

	if got := stepIDs(levels[0]); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("level 0 = %v, want [a]", got)
	}
	if got := stepIDs(levels[1]); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("level 1 = %v, want [b c]", got)
	}
	if got := stepIDs(levels[2]); !reflect.DeepEqual(got, []string{"d"}) {
		t.Errorf("level 2 = %v, want [d]", got)
	}

	for i, level := range levels {
		if level.Depth != i {
			t.Errorf("level %d has depth %d", i, level.Depth)
		}
	}
}

func TestGroupByLevelPriorityOrdering(t *testing.T) {
	low := step("low")
	low.Priority = 2
	high := step("high")
	high.Priority = 9
	mid1 := step("mid1")
	mid1.Priority = 5
	mid2 := step("mid2")
	mid2.Priority = 5

	plan := makePlan(low, mid1, high, mid2)

	levels := NewGrouper().GroupByLevel(plan)
	if len(levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(levels))
	}

	// Descending priority; the tie between mid1 and mid2 keeps plan order.
	want := []string{"high", "mid1", "mid2", "low"}
	if got := stepIDs(levels[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("level order = %v, want %v", got, want)
	}
}

func TestGroupByLevelIdempotent(t *testing.T) {
	plan := makePlan(
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	)

	g := NewGrouper()
	first := g.GroupByLevel(plan)
	second := g.GroupByLevel(plan)

	if len(first) != len(second) {
		t.Fatalf("level counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(stepIDs(first[i]), stepIDs(second[i])) {
			t.Errorf("level %d differs between runs: %v vs %v",
				i, stepIDs(first[i]), stepIDs(second[i]))
		}
	}
}

func TestGroupByLevelCoversEveryStepOnce(t *testing.T) {
	plan := makePlan(
		step("a"),
		step("b"),
		step("c", "a", "b"),
		step("d", "c"),
		step("e", "b"),
	)

	levels := NewGrouper().GroupByLevel(plan)

	seen := map[string]int{}
	for _, level := range levels {
		for _, s := range level.Steps {
			seen[s.ID]++
		}
	}
	if len(seen) != len(plan.Steps) {
		t.Fatalf("levels cover %d steps, want %d", len(seen), len(plan.Steps))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("step %s appears %d times", id, n)
		}
	}
}

func stepIDs(level domain.DependencyLevel) []string {
	ids := make([]string, 0, len(level.Steps))
	for _, s := range level.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}
