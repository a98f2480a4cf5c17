// Package graph sequences the request pipeline as a directed graph of named
// nodes. Nodes mutate a per-request State; edge selectors read the State to
// pick the next node. An error recorded on the State redirects every guarded
// edge to the fallback handler.
package graph

import (
	"context"

	"github.com/halcyondata/askdb/errors"
)

// End is the terminal pseudo-node. A selector returning End stops traversal.
const End = "end"

// Node runs one pipeline stage. Nodes report failures on the State rather
// than returning errors, so traversal decisions stay in the selectors.
type Node func(ctx context.Context, s *State)

// Selector picks the next node name after a node has run.
type Selector func(s *State) string

// maxSteps bounds traversal so a miswired cycle cannot spin forever. The
// longest legitimate walk is the analytics pipeline retried to the fallback
// ceiling, well under this.
const maxSteps = 40

// Graph is an immutable node/edge table once built. Safe for concurrent
// traversal because all per-request state lives in State.
type Graph struct {
	nodes map[string]Node
	edges map[string]Selector
	entry string
}

func New() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		edges: make(map[string]Selector),
	}
}

// AddNode registers a named node. Names must be unique.
func (g *Graph) AddNode(name string, fn Node) error {
	if name == "" || name == End {
		return errors.Newf("invalid node name %q", name)
	}
	if fn == nil {
		return errors.Newf("node %q has no function", name)
	}
	if _, exists := g.nodes[name]; exists {
		return errors.Newf("node %q already registered", name)
	}
	g.nodes[name] = fn
	return nil
}

// SetEntry declares where traversal starts.
func (g *Graph) SetEntry(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return errors.Newf("entry node %q not registered", name)
	}
	g.entry = name
	return nil
}

// AddEdge wires an unconditional transition.
func (g *Graph) AddEdge(from, to string) error {
	return g.AddConditionalEdge(from, func(*State) string { return to })
}

// AddConditionalEdge wires a selector-driven transition.
func (g *Graph) AddConditionalEdge(from string, sel Selector) error {
	if _, ok := g.nodes[from]; !ok {
		return errors.Newf("edge source %q not registered", from)
	}
	if sel == nil {
		return errors.Newf("edge from %q has no selector", from)
	}
	if _, exists := g.edges[from]; exists {
		return errors.Newf("node %q already has an outgoing edge", from)
	}
	g.edges[from] = sel
	return nil
}

// Run walks the graph from the entry node until a selector returns End.
// The context is checked before every node so a cancelled request stops
// between stages.
func (g *Graph) Run(ctx context.Context, s *State) error {
	if g.entry == "" {
		return errors.New("graph has no entry node")
	}

	current := g.entry
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		fn, ok := g.nodes[current]
		if !ok {
			return errors.Newf("traversal reached unknown node %q", current)
		}
		s.Trace = append(s.Trace, current)
		fn(ctx, s)

		sel, ok := g.edges[current]
		if !ok {
			return errors.Newf("node %q has no outgoing edge", current)
		}
		next := sel(s)
		if next == End {
			return nil
		}
		current = next
	}
	return errors.Newf("traversal exceeded %d steps", maxSteps)
}
