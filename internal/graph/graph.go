package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/stateflow/pkg/schema"
)

// Graph is a directed graph of nodes connected by optionally conditional
// edges. Graphs are built incrementally (nodes and edges in any order),
// validated before execution, and treated as read-only while any run against
// them is in flight. Concurrent mutation during a run is undefined behavior
// and must be prevented by the caller.
type Graph struct {
	ID        string
	Name      string
	CreatedAt time.Time

	entry string
	nodes map[string]*Node
	order []string // node IDs in insertion order
	edges []*Edge
}

// New creates an empty graph with a generated ID.
func New(name string) *Graph {
	return &Graph{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		nodes:     make(map[string]*Node),
	}
}

// AddNode adds a node to the graph. Re-adding an existing ID is an explicit
// DUPLICATE_NODE error; node replacement is not supported. The first node
// added becomes the entry point unless one was already set.
func (g *Graph) AddNode(id string, transform StateTransform, description string) error {
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "node id is empty")
	}
	if transform == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "node %q has nil transform", id)
	}
	if _, exists := g.nodes[id]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateNode, "node %q already exists", id)
	}

	g.nodes[id] = &Node{ID: id, Transform: transform, Description: description}
	g.order = append(g.order, id)

	if g.entry == "" {
		g.entry = id
	}
	return nil
}

// AddEdge adds a directed edge. Neither endpoint is required to exist yet;
// endpoint existence is checked by Validate so nodes and edges can be added
// in any order. predicate may be nil for an unconditional edge.
func (g *Graph) AddEdge(from, to string, predicate Predicate, description string) {
	g.edges = append(g.edges, &Edge{
		From:        from,
		To:          to,
		Predicate:   predicate,
		Description: description,
	})
}

// SetEntryPoint sets the node where execution begins. Unlike edges, entry
// point validity is checked eagerly.
func (g *Graph) SetEntryPoint(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeUnknownNode, "node %q does not exist", id)
	}
	g.entry = id
	return nil
}

// EntryPoint returns the current entry point node ID, or "" if unset.
func (g *Graph) EntryPoint() string {
	return g.entry
}

// Node looks up a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// Validate checks the structural integrity of the graph. It never returns an
// error value: invalid graphs yield false plus a descriptive message.
// Calling Validate repeatedly without mutation returns the same result.
func (g *Graph) Validate() (bool, string) {
	if len(g.nodes) == 0 {
		return false, "graph has no nodes"
	}
	if g.entry == "" {
		return false, "no entry point set"
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return false, fmt.Sprintf("entry point %q does not exist", g.entry)
	}
	for i, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return false, fmt.Sprintf("edge %d references unknown source node %q", i, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return false, fmt.Sprintf("edge %d references unknown destination node %q", i, e.To)
		}
	}
	return true, ""
}

// NextNodes evaluates, in insertion order, every edge leaving current and
// returns the qualifying target IDs. An edge qualifies if its predicate is
// nil or evaluates true. Predicate evaluation must not mutate state.
//
// An erroring predicate is treated as non-matching; the first such error is
// returned alongside the matches as a ROUTING_ERROR so the caller can decide
// whether to surface it (strict routing) or swallow it.
func (g *Graph) NextNodes(ctx context.Context, current string, state map[string]any) ([]string, error) {
	var next []string
	var routingErr error

	for _, e := range g.edges {
		if e.From != current {
			continue
		}
		if e.Predicate == nil {
			next = append(next, e.To)
			continue
		}
		ok, err := e.Predicate.Eval(ctx, state)
		if err != nil {
			if routingErr == nil {
				routingErr = schema.NewErrorf(schema.ErrCodeRoutingFailed,
					"predicate on edge %s->%s: %s", e.From, e.To, err.Error()).
					WithNode(current).
					WithCause(err)
			}
			continue
		}
		if ok {
			next = append(next, e.To)
		}
	}
	return next, routingErr
}
