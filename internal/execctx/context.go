// Package execctx implements Context: the per-execution
// handle a node body receives, exposing submit for background calls.
package execctx

import (
	"context"

	"github.com/smthngslv/mycelia/internal/call"
)

// Registrar is the subset of the Scheduler's capability a Context needs:
// durably enqueueing a call without creating a dependency edge from the
// caller. Context depends on this narrow interface rather than the
// concrete scheduler type, so this package does not import
// internal/scheduler; internal/executor constructs the Context it hands to
// a node body, passing the Scheduler as the Registrar.
type Registrar interface {
	Submit(ctx context.Context, d call.Deferred) error
}

// Context is the object a node body receives as its first parameter. It
// embeds context.Context so node bodies can participate in the caller's
// cancellation and deadlines, and adds the execution-scoped submit
// operation.
type Context struct {
	context.Context

	registrar Registrar
}

// New builds a Context for one node-body invocation, wrapping parent and
// delegating background submissions to registrar.
func New(parent context.Context, registrar Registrar) *Context {
	return &Context{Context: parent, registrar: registrar}
}

// Submit registers d for background execution without establishing a
// dependency edge from the currently running call: it returns once d is
// durably enqueued, not once it completes. The submitted call runs
// concurrently with, and may outlive, the submitter.
func (c *Context) Submit(d call.Deferred) error {
	return c.registrar.Submit(c.Context, d)
}
