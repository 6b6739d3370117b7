package dagbuilder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/dagbuilder"
)

// fakeStore is a hand-written CallStore test double (not a generated mock:
// the toolchain that would run mockgen isn't available here).
type fakeStore struct {
	calls       map[callid.ID]call.Call
	insertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[callid.ID]call.Call)}
}

func (s *fakeStore) Lookup(id callid.ID) (call.Call, bool) {
	c, ok := s.calls[id]
	return c, ok
}

func (s *fakeStore) Insert(ctx context.Context, c call.Call) error {
	s.insertCalls++
	s.calls[c.ID] = c
	return nil
}

func ref(name string) callid.NodeRef {
	return callid.NodeRef{GraphID: "g", Node: name}
}

func TestBuilder_RegisterLiteralOnlyCall(t *testing.T) {
	store := newFakeStore()
	b := dagbuilder.New(store)

	d := call.NewInvocation(ref("add"), []any{1, 2}, nil)
	id, err := b.Register(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, id.Zero())
	assert.Equal(t, 1, store.insertCalls)
}

func TestBuilder_RegisterIsIdempotentByContent(t *testing.T) {
	store := newFakeStore()
	b := dagbuilder.New(store)
	ctx := context.Background()

	id1, err := b.Register(ctx, call.NewInvocation(ref("add"), []any{1, 2}, nil))
	require.NoError(t, err)
	id2, err := b.Register(ctx, call.NewInvocation(ref("add"), []any{1, 2}, nil))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, store.insertCalls, "duplicate content must not insert twice")
}

func TestBuilder_DifferentArgsDifferentID(t *testing.T) {
	store := newFakeStore()
	b := dagbuilder.New(store)
	ctx := context.Background()

	id1, err := b.Register(ctx, call.NewInvocation(ref("add"), []any{1, 2}, nil))
	require.NoError(t, err)
	id2, err := b.Register(ctx, call.NewInvocation(ref("add"), []any{1, 3}, nil))
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestBuilder_RegisterNestedCall(t *testing.T) {
	store := newFakeStore()
	b := dagbuilder.New(store)
	ctx := context.Background()

	child := call.NewInvocation(ref("child"), []any{1}, nil)
	parent := call.NewInvocation(ref("parent"), []any{child}, nil)

	id, err := b.Register(ctx, parent)
	require.NoError(t, err)

	stored, ok := store.Lookup(id)
	require.True(t, ok)
	require.Len(t, stored.Args, 1)
	assert.True(t, stored.Args[0].IsRef)
	assert.False(t, stored.Args[0].RefID.Zero())
	assert.Equal(t, 2, store.insertCalls, "child and parent each insert once")
}

func TestBuilder_SharedChildInsertsOnce(t *testing.T) {
	store := newFakeStore()
	b := dagbuilder.New(store)
	ctx := context.Background()

	child := call.NewInvocation(ref("child"), []any{0}, nil)
	args := make([]any, 10)
	for i := range args {
		args[i] = child
	}
	parent := call.NewInvocation(ref("parent"), args, nil)

	id, err := b.Register(ctx, parent)
	require.NoError(t, err)

	stored, ok := store.Lookup(id)
	require.True(t, ok)

	first := stored.Args[0].RefID
	for _, s := range stored.Args {
		assert.Equal(t, first, s.RefID)
	}
	// one insert for the child (shared across all 10 slots) + one for parent.
	assert.Equal(t, 2, store.insertCalls)
}

func TestBuilder_KwargsKeyOrderDoesNotAffectID(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	b := dagbuilder.New(store)

	id1, err := b.Register(ctx, call.NewInvocation(ref("f"), nil, map[string]any{"a": 1, "b": 2}))
	require.NoError(t, err)

	store2 := newFakeStore()
	b2 := dagbuilder.New(store2)
	id2, err := b2.Register(ctx, call.NewInvocation(ref("f"), nil, map[string]any{"b": 2, "a": 1}))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestBuilder_BuriedCallRejected(t *testing.T) {
	store := newFakeStore()
	b := dagbuilder.New(store)

	child := call.NewInvocation(ref("child"), nil, nil)
	parent := call.NewInvocation(ref("parent"), []any{[]any{child}}, nil)

	_, err := b.Register(context.Background(), parent)
	require.Error(t, err)

	var target *call.UnreachableDeferredCallError
	require.ErrorAs(t, err, &target)
}
