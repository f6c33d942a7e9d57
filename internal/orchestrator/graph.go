// Package orchestrator lowers workflows into tasks, dispatches them in
// dependency order, and aggregates their outcomes.
package orchestrator

import (
	"errors"
)

// ErrWorkflowCyclic indicates a circular dependency in a workflow's step
// graph. Detected at creation time; no tasks are created.
var ErrWorkflowCyclic = errors.New("workflow dependency cycle detected")

// stepGraph is the dependency graph of a workflow's steps, keyed by step
// index. It is built bidirectionally so both dispatch (prerequisites) and
// impact queries (dependents) are cheap.
type stepGraph struct {
	// prereqs maps a step index to the indexes it depends on.
	prereqs map[int][]int
	// dependents maps a step index to the indexes that depend on it.
	dependents map[int][]int
	// size is the number of steps.
	size int
}

// buildStepGraph resolves each step's declared dependencies by matching
// descriptions against the other steps. A name matching no step is
// silently dropped; duplicate descriptions resolve to the first occurrence.
func buildStepGraph(descriptions []string, dependsOn [][]string) *stepGraph {
	byDescription := make(map[string]int, len(descriptions))
	for i, desc := range descriptions {
		if _, seen := byDescription[desc]; !seen {
			byDescription[desc] = i
		}
	}

	g := &stepGraph{
		prereqs:    make(map[int][]int),
		dependents: make(map[int][]int),
		size:       len(descriptions),
	}
	for i, deps := range dependsOn {
		for _, name := range deps {
			j, ok := byDescription[name]
			if !ok {
				continue
			}
			g.prereqs[i] = append(g.prereqs[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}
	return g
}

// hasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *stepGraph) hasCycle() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[int]int, g.size)

	var visit func(i int) bool
	visit = func(i int) bool {
		colors[i] = 1

		for _, j := range g.prereqs[i] {
			switch colors[j] {
			case 1:
				// Back edge - cycle detected.
				return true
			case 0:
				if visit(j) {
					return true
				}
			}
		}

		colors[i] = 2
		return false
	}

	for i := 0; i < g.size; i++ {
		if colors[i] == 0 {
			if visit(i) {
				return true
			}
		}
	}
	return false
}
