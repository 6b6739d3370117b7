// Package dagbuilder implements the DAG Builder: from a root call and its
// arguments, it builds the dependency DAG with structural sharing,
// delegating all mutable state (status, dependents, the ready queue) to a
// CallStore.
package dagbuilder

import (
	"context"
	"fmt"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/value"
)

// CallStore is the subset of scheduler state the builder reads and
// mutates. It is implemented by internal/scheduler; the builder depends
// only on this narrow interface so the two packages don't import each
// other's concrete types.
type CallStore interface {
	// Lookup returns the call already stored under id, if any: the
	// structural-sharing short-circuit that lets Register skip rebuilding
	// a subtree it has already seen.
	Lookup(id callid.ID) (call.Call, bool)

	// Insert stores a brand-new call, deriving its initial PENDING/READY
	// state from its unique dependencies and registering it as a
	// dependent of each one that isn't yet resolved.
	Insert(ctx context.Context, c call.Call) error
}

// Builder materializes Deferred call trees into a scheduler's call table.
type Builder struct {
	store CallStore
}

// New returns a Builder that inserts newly discovered calls into store.
func New(store CallStore) *Builder {
	return &Builder{store: store}
}

// Register implements the register(call) -> call-id operation. d must be
// the Call(id) variant of Deferred (IsCall() true); Node.Invoke is the
// only producer of such values.
func (b *Builder) Register(ctx context.Context, d call.Deferred) (callid.ID, error) {
	if !d.IsCall() {
		return callid.ID{}, fmt.Errorf("dagbuilder: cannot register a Deferred that is a plain value, not a call")
	}

	nodeRef, rawArgs, rawKwargs := d.Invocation()

	argSlots, kwargSlots, err := call.WalkArgs(rawArgs, rawKwargs)
	if err != nil {
		return callid.ID{}, err
	}

	builtArgs := make([]call.Slot, len(argSlots))
	for i, s := range argSlots {
		slot, err := b.buildSlot(ctx, s, fmt.Sprintf("args[%d]", i))
		if err != nil {
			return callid.ID{}, err
		}
		builtArgs[i] = slot
	}

	var builtKwargs map[string]call.Slot
	if len(kwargSlots) > 0 {
		builtKwargs = make(map[string]call.Slot, len(kwargSlots))
		for k, s := range kwargSlots {
			slot, err := b.buildSlot(ctx, s, fmt.Sprintf("kwargs[%q]", k))
			if err != nil {
				return callid.ID{}, err
			}
			builtKwargs[k] = slot
		}
	}

	id, err := computeID(nodeRef, builtArgs, builtKwargs)
	if err != nil {
		return callid.ID{}, err
	}

	if existing, ok := b.store.Lookup(id); ok {
		// Structural sharing: the call already exists, so no new dependency
		// edges are added.
		return existing.ID, nil
	}

	built := call.Call{ID: id, NodeRef: nodeRef, Args: builtArgs, Kwargs: builtKwargs}
	if err := b.store.Insert(ctx, built); err != nil {
		return callid.ID{}, err
	}
	return id, nil
}

// buildSlot turns one ArgSlot into a built Slot: recursing to register a
// nested call, or canonically encoding a literal.
func (b *Builder) buildSlot(ctx context.Context, s call.ArgSlot, path string) (call.Slot, error) {
	if s.Ref != nil {
		childID, err := b.Register(ctx, *s.Ref)
		if err != nil {
			return call.Slot{}, err
		}
		return call.RefSlot(childID), nil
	}

	cv, err := value.FromGo(s.Literal)
	if err != nil {
		return call.Slot{}, &call.NonSerializableArgumentError{Path: path, Cause: err}
	}
	encoded, err := value.CanonicalEncode(cv)
	if err != nil {
		return call.Slot{}, &call.NonSerializableArgumentError{Path: path, Cause: err}
	}
	ok, err := value.IsDeterministic(cv, encoded)
	if err != nil {
		return call.Slot{}, &call.NonSerializableArgumentError{Path: path, Cause: err}
	}
	if !ok {
		return call.Slot{}, &call.NonDeterministicArgumentError{Path: path}
	}

	return call.LiteralSlot(s.Literal), nil
}

// computeID computes the content-addressed id: id = H(node_ref ‖
// canonical_encode(args) ‖ canonical_encode(kwargs)), with Ref slots
// contributing their child's id and kwargs folded in lexicographic key
// order.
func computeID(nodeRef callid.NodeRef, args []call.Slot, kwargs map[string]call.Slot) (callid.ID, error) {
	b := callid.NewBuilder(nodeRef)

	for _, s := range args {
		if err := addSlot(b, s); err != nil {
			return callid.ID{}, err
		}
	}
	b.EndArgs()

	keys := value.SortedKeys(kwargs)
	for _, k := range keys {
		b.AddLiteral([]byte(k))
		if err := addSlot(b, kwargs[k]); err != nil {
			return callid.ID{}, err
		}
	}

	return b.Sum(), nil
}

func addSlot(b *callid.Builder, s call.Slot) error {
	if s.IsRef {
		b.AddRef(s.RefID)
		return nil
	}
	cv, err := value.FromGo(s.Literal)
	if err != nil {
		return &call.NonSerializableArgumentError{Cause: err}
	}
	encoded, err := value.CanonicalEncode(cv)
	if err != nil {
		return &call.NonSerializableArgumentError{Cause: err}
	}
	b.AddLiteral(encoded)
	return nil
}
