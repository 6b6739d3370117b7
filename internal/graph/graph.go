// Package graph implements the Graph Registry: a namespace of registered
// nodes keyed by stable name, register-only with O(1) lookup.
package graph

import "sync"

// Graph is a named collection of nodes: the namespace within which a call
// resolves its target. A Graph is mutable (via Register) until Open is
// called, and immutable afterward — built up once at process start and
// then only read from during execution.
type Graph struct {
	id string

	mu    sync.RWMutex
	nodes map[string]*Node
	open  bool
}

// New creates an empty graph identified by id. The id becomes the
// graph-id half of every node_ref produced by nodes registered on it.
func New(id string) *Graph {
	return &Graph{id: id, nodes: make(map[string]*Node)}
}

// ID returns the graph's identifier.
func (g *Graph) ID() string { return g.id }

// Register attaches a node named name, with the given argument schema and
// body, to the graph. It fails with a DuplicateNodeRegistrationError if
// name is already taken, or a GraphClosedError if a session has already
// opened the graph.
func (g *Graph) Register(name string, schema Schema, fn Fn) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return nil, &GraphClosedError{GraphID: g.id}
	}
	if _, exists := g.nodes[name]; exists {
		return nil, &DuplicateNodeRegistrationError{GraphID: g.id, Name: name}
	}

	n := &Node{graph: g, name: name, schema: schema, fn: fn}
	g.nodes[name] = n
	return n, nil
}

// Lookup resolves a node by name, returning NodeNotRegisteredError if it
// has no registration.
func (g *Graph) Lookup(name string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[name]
	if !ok {
		return nil, &NodeNotRegisteredError{GraphID: g.id, Name: name}
	}
	return n, nil
}

// Open freezes the graph against further registration. Sessions call this
// once, when they open: the graph is immutable after the first session
// opens it.
func (g *Graph) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
}

// IsOpen reports whether Open has been called.
func (g *Graph) IsOpen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.open
}

// Nodes returns every registered node. The returned slice is a fresh copy
// safe for the caller to range over regardless of concurrent registration.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}
