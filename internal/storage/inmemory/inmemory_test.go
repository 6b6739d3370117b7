package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/storage"
	"github.com/smthngslv/mycelia/internal/storage/inmemory"
)

func TestStorage_PutGetCall(t *testing.T) {
	s := inmemory.New()
	ctx := context.Background()

	c := call.Call{ID: callid.ID{1}, NodeRef: callid.NodeRef{GraphID: "g", Node: "n"}}
	require.NoError(t, s.PutCall(ctx, c))

	got, err := s.GetCall(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestStorage_GetCallMissing(t *testing.T) {
	s := inmemory.New()
	_, err := s.GetCall(context.Background(), callid.ID{9})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage_PutGetResult(t *testing.T) {
	s := inmemory.New()
	ctx := context.Background()
	id := callid.ID{2}

	require.NoError(t, s.PutResult(ctx, id, call.StatusResolved, call.Resolved("v")))

	status, outcome, err := s.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, call.StatusResolved, status)
	assert.Equal(t, "v", outcome.Value)
}

func TestStorage_CompareAndSwapStatus(t *testing.T) {
	s := inmemory.New()
	ctx := context.Background()
	id := callid.ID{3}

	require.NoError(t, s.CompareAndSwapStatus(ctx, id, call.StatusReady, call.StatusRunning))
	// A second claim of the same transition must fail: only one writer wins.
	err := s.CompareAndSwapStatus(ctx, id, call.StatusReady, call.StatusRunning)
	assert.ErrorIs(t, err, storage.ErrCASConflict)

	require.NoError(t, s.CompareAndSwapStatus(ctx, id, call.StatusRunning, call.StatusResolved))
}
