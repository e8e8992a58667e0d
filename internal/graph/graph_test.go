package graph

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuild_UnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*Node{{ID: "a", DependsOn: []string{"missing"}}})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	if err.Error() != "node a depends on unknown node missing" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuild_Cycle(t *testing.T) {
	g := New()
	err := g.Build([]*Node{
		{ID: "a", DependsOn: []string{"c"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuild_Duplicate(t *testing.T) {
	g := New()
	if err := g.Build([]*Node{{ID: "a"}, {ID: "a"}}); err == nil {
		t.Error("expected error for duplicate node")
	}
}

func TestTopologicalSort_Chain(t *testing.T) {
	g := New()
	err := g.Build([]*Node{
		{ID: "subtask_0"},
		{ID: "subtask_1", DependsOn: []string{"subtask_0"}},
		{ID: "subtask_2", DependsOn: []string{"subtask_1"}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort failed: %v", err)
	}
	want := []string{"subtask_0", "subtask_1", "subtask_2"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalSort_PriorityThenInsertion(t *testing.T) {
	g := New()
	err := g.Build([]*Node{
		{ID: "low", Priority: 0.2},
		{ID: "high", Priority: 0.9},
		{ID: "tie_a", Priority: 0.5},
		{ID: "tie_b", Priority: 0.5},
		{ID: "after_low", DependsOn: []string{"low"}, Priority: 1.0},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort failed: %v", err)
	}
	want := []string{"high", "tie_a", "tie_b", "low", "after_low"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalSort_Deterministic(t *testing.T) {
	build := func() []string {
		g := New()
		_ = g.Build([]*Node{{ID: "x"}, {ID: "y"}, {ID: "z", DependsOn: []string{"x", "y"}}})
		order, _ := g.TopologicalSort()
		return order
	}
	first := build()
	for i := 0; i < 10; i++ {
		if got := build(); !reflect.DeepEqual(got, first) {
			t.Fatalf("order changed between runs: %v vs %v", got, first)
		}
	}
}

func TestRootsAndDependents(t *testing.T) {
	g := New()
	var logged int
	g.SetDebugLog(func(format string, args ...interface{}) { logged++ })
	err := g.Build([]*Node{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a"}},
		{ID: "d"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := g.Roots(); !reflect.DeepEqual(got, []string{"a", "d"}) {
		t.Errorf("Roots() = %v", got)
	}
	if got := g.GetDependents("a"); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("GetDependents(a) = %v", got)
	}
	if got := g.GetDependencies("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("GetDependencies(b) = %v", got)
	}
	if g.Size() != 4 {
		t.Errorf("Size() = %d, want 4", g.Size())
	}
	if g.GetNode("d") == nil {
		t.Error("GetNode(d) returned nil")
	}
	if logged == 0 {
		t.Error("expected debug log to be called")
	}
}
