package compiler

import (
	"fmt"
	"strings"
)

// CycleWarning is a set of rules whose effects can trigger each other.
//
// Cycles are warnings, not errors. The engine never runs syncs for
// effects, so a cycle cannot loop at runtime, but it usually means a rule
// expects a chain that will not happen.
type CycleWarning struct {
	Path    []string `json:"path"`    // e.g. ["A", "B", "A"]
	Message string   `json:"message"`
}

// AnalyzeCycles finds rules whose effect actions trigger other rules in
// a loop. An acyclic rule set returns an empty list.
//
// The algorithm:
//  1. add an edge A -> B when one of A's effects is B's trigger
//  2. find strongly connected components with Tarjan's algorithm
//  3. report components larger than one, and self-loops
func AnalyzeCycles(rules []RuleSpec) []CycleWarning {
	warnings := []CycleWarning{}
	if len(rules) == 0 {
		return warnings
	}

	graph, order := buildDependencyGraph(rules)
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps a rule name to the rules its effects trigger.
type dependencyGraph map[string][]string

// buildDependencyGraph also returns rule names in first-declared order so
// the analysis is deterministic.
func buildDependencyGraph(rules []RuleSpec) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	var order []string

	byTrigger := make(map[string][]string)
	for _, r := range rules {
		byTrigger[r.When] = append(byTrigger[r.When], r.Name)
	}

	for _, r := range rules {
		if _, ok := graph[r.Name]; !ok {
			graph[r.Name] = []string{}
			order = append(order, r.Name)
		}
		for _, e := range r.Then {
			graph[r.Name] = append(graph[r.Name], byTrigger[e.Action]...)
		}
	}
	return graph, order
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// root of an SCC: pop it
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("rule %s triggers itself", name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("rules trigger each other: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath walks edges inside the SCC from its first member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
