package wsbroker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smthngslv/mycelia/internal/broker"
	"github.com/smthngslv/mycelia/internal/broker/wsbroker"
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
)

func newServerAndWorker(t *testing.T) (*wsbroker.Broker, *wsbroker.WorkerConn) {
	t.Helper()

	b := wsbroker.New(4, 4)
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	wc, err := wsbroker.DialWorker(wsURL)
	require.NoError(t, err)
	t.Cleanup(func() { wc.Close() })

	// Give ServeHTTP's goroutine a moment to register the connection before
	// Publish races to dispatch a frame to it.
	time.Sleep(20 * time.Millisecond)
	return b, wc
}

func TestWSBroker_DispatchesWorkAndRelaysCompletion(t *testing.T) {
	b, wc := newServerAndWorker(t)
	ctx := context.Background()
	id := callid.ID{1}

	stream, err := b.SubscribeCompletions(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, id))

	got, err := wc.Next()
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, wc.Complete(got, call.Resolved("done")))

	select {
	case c := <-stream:
		assert.Equal(t, id, c.ID)
		assert.Equal(t, "done", c.Outcome.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed completion")
	}
}

func TestWSBroker_RelaysWorkerNackToRequeueStream(t *testing.T) {
	b, wc := newServerAndWorker(t)
	ctx := context.Background()
	id := callid.ID{2}

	requeues, err := b.SubscribeRequeues(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, id))

	got, err := wc.Next()
	require.NoError(t, err)

	require.NoError(t, wc.Nack(got))

	select {
	case requeued := <-requeues:
		assert.Equal(t, id, requeued)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed nack")
	}
}

func TestWSBroker_RelaysWorkerAck(t *testing.T) {
	b, wc := newServerAndWorker(t)
	ctx := context.Background()
	id := callid.ID{3}

	require.NoError(t, b.Publish(ctx, id))

	got, err := wc.Next()
	require.NoError(t, err)

	require.NoError(t, wc.Ack(got))
}

func TestWSBroker_RelaysFailedCompletion(t *testing.T) {
	b, wc := newServerAndWorker(t)
	ctx := context.Background()
	id := callid.ID{4}

	stream, err := b.SubscribeCompletions(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, id))

	got, err := wc.Next()
	require.NoError(t, err)

	require.NoError(t, wc.Complete(got, call.Failed(assertAnError("boom"))))

	select {
	case c := <-stream:
		assert.Equal(t, id, c.ID)
		assert.Equal(t, call.OutcomeError, c.Outcome.Kind)
		assert.EqualError(t, c.Outcome.Err, "boom")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed failure")
	}
}

func TestWSBroker_DropWorkerUnblocksOnClose(t *testing.T) {
	b, wc := newServerAndWorker(t)
	require.NoError(t, wc.Close())
	require.NoError(t, b.Close())

	_, err := b.Claim(context.Background())
	assert.ErrorIs(t, err, broker.ErrNoReadyWork)
}

type assertAnError string

func (e assertAnError) Error() string { return string(e) }
