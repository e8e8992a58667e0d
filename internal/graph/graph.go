// Package graph provides a dependency graph for ordering plan nodes.
package graph

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCycleDetected indicates a circular dependency was found in the graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Node is a vertex in the dependency graph.
type Node struct {
	// ID is the unique identifier for this node.
	ID string
	// DependsOn lists node IDs that must come before this node.
	DependsOn []string
	// Priority orders nodes that become ready at the same time; higher first.
	Priority float64
}

// DependencyGraph represents a directed acyclic graph of node dependencies.
// Edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps node ID to the node itself.
	nodes map[string]*Node
	// order records insertion order for deterministic iteration.
	order []string
	// edges maps node ID to IDs of nodes it depends on.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*Node),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of nodes.
// Returns an error if a cycle is detected or dependencies reference unknown nodes.
func (g *DependencyGraph) Build(nodes []*Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d nodes", len(nodes))

	// First pass: register all nodes.
	for _, node := range nodes {
		if _, exists := g.nodes[node.ID]; exists {
			return fmt.Errorf("duplicate node %s", node.ID)
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
		g.edges[node.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, node := range nodes {
		for _, depID := range node.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("node %s depends on unknown node %s", node.ID, depID)
			}
			g.edges[node.ID] = append(g.edges[node.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

// hasCycleLocked uses depth-first search with coloring to detect back
// edges. It assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns node IDs in an order where all dependencies come
// before the nodes that depend on them, using Kahn's algorithm. Among ready
// nodes, higher priority goes first, then insertion order.
// Returns ErrCycleDetected if not every node can be ordered.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	index := make(map[string]int, len(g.order))
	for i, id := range g.order {
		index[id] = i
		inDegree[id] = len(g.edges[id])
		for _, depID := range g.edges[id] {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	var ready []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.before(ready[i], ready[best], index) {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		result = append(result, id)

		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		g.debugLog("[graph.TopologicalSort] ordered %d of %d nodes", len(result), len(g.nodes))
		return nil, ErrCycleDetected
	}

	return result, nil
}

// before reports whether a should be emitted ahead of b when both are ready.
func (g *DependencyGraph) before(a, b string, index map[string]int) bool {
	pa, pb := g.nodes[a].Priority, g.nodes[b].Priority
	if pa != pb {
		return pa > pb
	}
	return index[a] < index[b]
}

// Roots returns the IDs of nodes with no dependencies, in insertion order.
func (g *DependencyGraph) Roots() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var roots []string
	for _, id := range g.order {
		if len(g.edges[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// GetNode returns the node for a given ID, or nil if not found.
func (g *DependencyGraph) GetNode(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Size returns the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of nodes that the given node depends on.
func (g *DependencyGraph) GetDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// GetDependents returns the IDs of nodes that depend on the given node,
// in insertion order.
func (g *DependencyGraph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, nodeID := range g.order {
		for _, depID := range g.edges[nodeID] {
			if depID == id {
				dependents = append(dependents, nodeID)
				break
			}
		}
	}
	return dependents
}
