// Package mycelia is a distributed task-graph execution system for
// multi-step, dependency-heavy workflows. A user registers nodes —
// asynchronous procedures — on a Graph; invoking one produces a Deferred,
// a composable handle to a not-yet-executed call that can be passed as an
// argument to another node, returned to tail-call into a successor, or
// submitted for background execution. A Session materializes the deferred
// calls reachable from what it's asked to run into a dependency DAG,
// schedules them with maximum parallelism, memoizes identical invocations
// by content, and distributes work across worker processes through a
// pluggable broker.
package mycelia

import (
	"context"
	"net/http"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/config"
	"github.com/smthngslv/mycelia/internal/execctx"
	"github.com/smthngslv/mycelia/internal/graph"
	"github.com/smthngslv/mycelia/internal/session"
)

// CallID identifies a call by the content hash of its node and arguments
//. Two calls with the same CallID are the same entity.
type CallID = callid.ID

// Deferred is the opaque Call(id) | Value(T) handle a node invocation
// produces. It can be stored, passed as an argument to another node, or
// returned to tail-call into a successor; its contents are not inspectable
// from user code.
type Deferred = call.Deferred

// Context is the first parameter every node body receives: a
// context.Context for cancellation, plus Submit for background work that
// does not create a dependency edge from the currently running call.
type Context = execctx.Context

// Schema describes a node's argument shape: positional-only count,
// keyword-only names, and variadic flags — the full classical argument
// contract a node body's parameter list follows.
type Schema = graph.Schema

// Fn is a node body.
type Fn = graph.Fn

// Value wraps an already-known result as a Deferred, for a node body that
// wants to return a plain literal through the same Deferred-typed path a
// tail-call would take, or for a caller passing a literal where a Deferred
// is accepted.
func Value(v any) Deferred { return call.NewValue(v) }

// Graph is a named namespace of registered nodes. Register nodes on it,
// then pass it to Open; Open freezes it against further registration.
type Graph struct {
	inner *graph.Graph
}

// NewGraph creates an empty graph identified by id.
func NewGraph(id string) *Graph {
	return &Graph{inner: graph.New(id)}
}

// ID returns the graph's identifier.
func (g *Graph) ID() string { return g.inner.ID() }

// Register attaches a node named name to the graph.
func (g *Graph) Register(name string, schema Schema, fn Fn) (*Node, error) {
	n, err := g.inner.Register(name, schema, fn)
	if err != nil {
		return nil, err
	}
	return &Node{inner: n}, nil
}

// Node is a registered node: invoke it to obtain a Deferred.
type Node struct {
	inner *graph.Node
}

// Name returns the node's registration name.
func (n *Node) Name() string { return n.inner.Name() }

// Invoke produces a Deferred binding this node to args/kwargs, any of
// which may themselves be Deferred values.
func (n *Node) Invoke(args []any, kwargs map[string]any) Deferred {
	return n.inner.Invoke(args, kwargs)
}

// Config is a Session's options: which broker and storage drivers to
// construct, how many local workers to run, and whether to enable the
// optional tracing/metrics hooks.
type Config = config.Config

// DefaultConfig returns an in-memory, single-process configuration.
func DefaultConfig() Config { return config.Default() }

// Session is one open graph's runtime. Acquire with Open, release with
// Close on every exit path.
type Session struct {
	inner *session.Session
}

// Open connects to the broker and storage drivers cfg names, registers g
// (freezing it against further node registration), and starts cfg.Workers
// local executor workers.
func Open(ctx context.Context, g *Graph, cfg Config) (*Session, error) {
	s, err := session.Open(ctx, g.inner, cfg)
	if err != nil {
		return nil, err
	}
	return &Session{inner: s}, nil
}

// Execute registers d and blocks until it — or whatever it tail-calls
// into — reaches a terminal state, returning its value or the error that
// terminated it.
func (s *Session) Execute(ctx context.Context, d Deferred) (any, error) {
	return s.inner.Execute(ctx, d)
}

// Submit registers d for execution and returns its CallID without waiting
// for it to complete. The submitted call runs concurrently with, and may
// outlive, the submitter.
func (s *Session) Submit(ctx context.Context, d Deferred) (CallID, error) {
	return s.inner.Submit(ctx, d)
}

// WorkerHandler returns the http.Handler remote workers dial into over
// WebSocket, or nil if the session was not opened with the "ws" broker
// driver.
func (s *Session) WorkerHandler() http.Handler {
	return s.inner.WorkerHandler()
}

// Close cancels outstanding work, waits for local workers to drain, and
// disconnects from the broker and storage drivers.
func (s *Session) Close() error {
	return s.inner.Close()
}
