package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/stateflow/pkg/schema"
)

// validateTopology performs graph analysis on a definition that has already
// passed semantic checks: reachability from the entry point and detection of
// cycles with no conditional exit.
//
// Cycles are legal — the executor's iteration ceiling bounds them — but a
// strongly connected region whose every internal edge is unconditional can
// never terminate normally, so it is flagged as a warning.
func validateTopology(def *schema.GraphDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(def.Nodes) == 0 {
		return result
	}

	entry := def.EntryPoint
	if entry == "" {
		entry = def.Nodes[0].ID
	}

	adjacency := make(map[string][]string, len(def.Nodes))
	unconditional := make(map[string][]string, len(def.Nodes))
	for _, e := range def.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
		if e.Condition == "" {
			unconditional[e.From] = append(unconditional[e.From], e.To)
		}
	}

	// Reachability: BFS from the entry point over all edges.
	reachable := map[string]bool{entry: true}
	queue := []string{entry}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, to := range adjacency[node] {
			if !reachable[to] {
				reachable[to] = true
				queue = append(queue, to)
			}
		}
	}

	var unreachable []string
	for _, n := range def.Nodes {
		if !reachable[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}
	sort.Strings(unreachable)
	for _, id := range unreachable {
		result.AddWarning(fmt.Sprintf("nodes[%s]", id), schema.ErrCodeValidation,
			fmt.Sprintf("node %q is unreachable from entry point %q", id, entry))
	}

	// Unconditional cycles: DFS over the unconditional-edge subgraph.
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(def.Nodes))
	var hasCycle bool
	var visit func(string)
	visit = func(node string) {
		color[node] = grey
		for _, to := range unconditional[node] {
			switch color[to] {
			case white:
				visit(to)
			case grey:
				hasCycle = true
			}
		}
		color[node] = black
	}
	for _, n := range def.Nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}

	if hasCycle {
		result.AddWarning("edges", schema.ErrCodeValidation,
			"graph contains a cycle of unconditional edges; runs through it always hit the iteration ceiling")
	}

	return result
}
