package graph

import (
	"fmt"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/execctx"
)

// Schema describes a node's argument shape: "positional-only
// count, keyword-only names, variadic flags". It exists so the Executor
// can validate a call's resolved arguments against the node's declared
// contract immediately before the body runs ("the full classical argument
// shape"). The Executor passes positional and keyword arguments to the
// body as they were supplied; the Schema does not reorder them.
type Schema struct {
	// PositionalOnly is the number of leading arguments that must be
	// supplied positionally.
	PositionalOnly int
	// KeywordOnly lists the names of arguments that must be supplied by
	// keyword.
	KeywordOnly []string
	// VariadicPositional allows any number of extra positional arguments
	// beyond PositionalOnly.
	VariadicPositional bool
	// VariadicKeyword allows any number of extra keyword arguments beyond
	// KeywordOnly.
	VariadicKeyword bool
}

// Validate checks materialized args/kwargs against s, returning an
// ArgumentShapeError describing the first mismatch found. node names the
// error to the node the schema belongs to.
func (s Schema) Validate(node string, args []any, kwargs map[string]any) error {
	if len(args) < s.PositionalOnly {
		return &ArgumentShapeError{Node: node, Reason: fmt.Sprintf("want at least %d positional argument(s), got %d", s.PositionalOnly, len(args))}
	}
	if !s.VariadicPositional && len(args) > s.PositionalOnly {
		return &ArgumentShapeError{Node: node, Reason: fmt.Sprintf("want at most %d positional argument(s), got %d", s.PositionalOnly, len(args))}
	}

	required := make(map[string]bool, len(s.KeywordOnly))
	for _, k := range s.KeywordOnly {
		required[k] = true
	}
	for k := range required {
		if _, ok := kwargs[k]; !ok {
			return &ArgumentShapeError{Node: node, Reason: fmt.Sprintf("missing required keyword argument %q", k)}
		}
	}
	if !s.VariadicKeyword {
		for k := range kwargs {
			if !required[k] {
				return &ArgumentShapeError{Node: node, Reason: fmt.Sprintf("unexpected keyword argument %q", k)}
			}
		}
	}
	return nil
}

// Fn is a node body: it receives a per-execution Context, the materialized
// positional and keyword arguments, and returns either a literal result or
// another deferred call (a continuation, ) or an error.
type Fn func(ctx *execctx.Context, args []any, kwargs map[string]any) (any, error)

// Node is registered procedure: a stable name, an argument
// schema, and a reference to its executable body. Once registered, a Node
// is never destroyed and is shared by every worker sharing its graph.
type Node struct {
	graph  *Graph
	name   string
	schema Schema
	fn     Fn
}

// Ref returns the (graph-id, node-name) pair that identifies invocations of
// this node, the value every Call embeds as its node_ref.
func (n *Node) Ref() callid.NodeRef {
	return callid.NodeRef{GraphID: n.graph.id, Node: n.name}
}

// Name returns the node's registration name.
func (n *Node) Name() string { return n.name }

// Schema returns the node's declared argument contract.
func (n *Node) Schema() Schema { return n.schema }

// Fn returns the node's executable body, used by internal/executor to
// dispatch a ready call.
func (n *Node) Fn() Fn { return n.fn }

// Invoke produces a Deferred call ("deferred call") binding
// this node to the given raw arguments. The returned Deferred is
// unregistered: internal/dagbuilder materializes it, along with any
// embedded Deferred arguments, into the dependency DAG.
func (n *Node) Invoke(args []any, kwargs map[string]any) call.Deferred {
	return call.NewInvocation(n.Ref(), args, kwargs)
}
