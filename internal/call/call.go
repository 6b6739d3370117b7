// Package call defines the deferred-call algebra: the opaque Deferred
// handle a node invocation produces, the Call value it eventually builds
// into, and the Argument Tree Walker that discovers embedded deferred
// calls in a raw argument list.
package call

import "github.com/smthngslv/mycelia/internal/callid"

// Deferred is the `Deferred<T> = Call(id) | Value(T)` sum type.
// User code receives a Deferred from invoking a node and must treat it as
// opaque: it can be stored, passed as an argument to another node, or
// returned to tail-call into a successor, but its contents are not
// inspectable from outside this package and internal/dagbuilder.
type Deferred struct {
	isCall  bool
	nodeRef callid.NodeRef
	args    []any
	kwargs  map[string]any
	value   any
}

// NewInvocation builds the Call(id) variant: an as-yet-unregistered
// invocation of node with raw arguments that may themselves contain
// Deferred values. Node.Invoke (internal/graph) produces these.
func NewInvocation(ref callid.NodeRef, args []any, kwargs map[string]any) Deferred {
	return Deferred{isCall: true, nodeRef: ref, args: args, kwargs: kwargs}
}

// NewValue builds the Value(T) variant: a deferred wrapping a plain,
// already-known result. A node body returning a literal, or a literal
// passed where a Deferred is expected, takes this form.
func NewValue(v any) Deferred {
	return Deferred{value: v}
}

// IsCall reports whether d is an unregistered invocation rather than a
// plain value.
func (d Deferred) IsCall() bool { return d.isCall }

// Invocation returns the node reference and raw arguments of d. Callers
// must first check IsCall.
func (d Deferred) Invocation() (callid.NodeRef, []any, map[string]any) {
	return d.nodeRef, d.args, d.kwargs
}

// Value returns d's wrapped literal. Callers must first check !IsCall.
func (d Deferred) Value() any { return d.value }

// Slot is "argument slot": a tagged value, either a literal
// or a reference to another call by id. By the time a Slot exists, the
// referenced call has already been recursively built and assigned an id
// (step 1: "recursively register all Ref slots, post-order").
type Slot struct {
	IsRef   bool
	RefID   callid.ID
	Literal any
}

// LiteralSlot wraps a plain value.
func LiteralSlot(v any) Slot {
	return Slot{Literal: v}
}

// RefSlot wraps a reference to an already-built call.
func RefSlot(id callid.ID) Slot {
	return Slot{IsRef: true, RefID: id}
}

// Call is the central entity of : one invocation of one node
// with fully-specified, already-built argument slots and a content-derived
// id. Call values are immutable; the mutable state machine (status,
// result, dependents) that layers on top of a Call lives
// in internal/scheduler, keyed by ID, to keep identity and topology
// separate from execution state.
type Call struct {
	ID      callid.ID
	NodeRef callid.NodeRef
	Args    []Slot
	Kwargs  map[string]Slot
}

// Dependencies returns the ids of every call this one directly references
// through a Ref slot, in a stable order (positional args first in
// declaration order, then kwargs in lexicographic key order) so callers
// that need determinism (tests, logging) don't have to re-derive it.
func (c Call) Dependencies() []callid.ID {
	deps := make([]callid.ID, 0, len(c.Args)+len(c.Kwargs))
	for _, s := range c.Args {
		if s.IsRef {
			deps = append(deps, s.RefID)
		}
	}
	for _, k := range sortedKeys(c.Kwargs) {
		if s := c.Kwargs[k]; s.IsRef {
			deps = append(deps, s.RefID)
		}
	}
	return deps
}

// UniqueDependencies returns Dependencies with duplicate ids collapsed to
// one occurrence, preserving first-seen order: reusing one call in K
// argument slots must still produce exactly one dependency edge — the
// parent waits for it to resolve once, not K times.
func (c Call) UniqueDependencies() []callid.ID {
	all := c.Dependencies()
	seen := make(map[callid.ID]bool, len(all))
	out := make([]callid.ID, 0, len(all))
	for _, id := range all {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sortedKeys(m map[string]Slot) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion sort is fine here: kwargs lists are small (arity is bounded
	// by a node's declared schema), and avoids importing sort just for this.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
