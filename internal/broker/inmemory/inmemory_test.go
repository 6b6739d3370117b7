package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/broker"
	"github.com/smthngslv/mycelia/internal/broker/inmemory"
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
)

func TestBroker_PublishClaim(t *testing.T) {
	b := inmemory.New(4, 4)
	ctx := context.Background()
	id := callid.ID{1}

	require.NoError(t, b.Publish(ctx, id))

	got, err := b.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestBroker_ClaimEmptyReturnsErrNoReadyWork(t *testing.T) {
	b := inmemory.New(4, 4)
	_, err := b.Claim(context.Background())
	assert.ErrorIs(t, err, broker.ErrNoReadyWork)
}

func TestBroker_NackNotifiesRequeueStreamWithoutRepublishing(t *testing.T) {
	b := inmemory.New(4, 4)
	ctx := context.Background()
	id := callid.ID{2}

	stream, err := b.SubscribeRequeues(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, id))
	_, err = b.Claim(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Nack(ctx, id))

	// Nack alone doesn't make id claimable again; only a notified
	// Scheduler republishing it after flipping its own record does.
	_, err = b.Claim(ctx)
	assert.ErrorIs(t, err, broker.ErrNoReadyWork)

	select {
	case got := <-stream:
		assert.Equal(t, id, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for requeue notification")
	}
}

func TestBroker_PublishCompletionSubscribe(t *testing.T) {
	b := inmemory.New(4, 4)
	ctx := context.Background()
	id := callid.ID{3}

	stream, err := b.SubscribeCompletions(ctx)
	require.NoError(t, err)

	require.NoError(t, b.PublishCompletion(ctx, broker.Completion{ID: id, Outcome: call.Resolved("done")}))

	select {
	case c := <-stream:
		assert.Equal(t, id, c.ID)
		assert.Equal(t, "done", c.Outcome.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestBroker_CloseIsIdempotentAndUnblocksClaim(t *testing.T) {
	b := inmemory.New(4, 4)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Claim(context.Background())
	assert.ErrorIs(t, err, broker.ErrNoReadyWork)
}
