// Package broker defines the Broker Adapter: the interface the Scheduler
// consumes to ship ready work to workers and receive completion events
// back, with at-least-once delivery and per-partition FIFO.
package broker

import (
	"context"
	"errors"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
)

// ErrNoReadyWork is returned by Claim when there is currently nothing to
// claim; callers should treat it as "try again later", not as a failure.
var ErrNoReadyWork = errors.New("broker: no ready work available")

// Completion is one delivered completion event: the id of the call that
// finished and the outcome its executor observed.
type Completion struct {
	ID      callid.ID
	Outcome call.Outcome
}

// Broker is the abstract interface: publish(ready-call-id), claim() ->
// call-id, ack(call-id), nack(call-id), publish-completion(call-id,
// outcome), subscribe-completions() -> stream, subscribe-requeues() ->
// stream. Implementations (internal/broker/inmemory, internal/broker/wsbroker)
// may be backed by anything; an AMQP driver is explicitly out of scope and
// not implemented here.
type Broker interface {
	// Publish makes id available for a worker to claim.
	Publish(ctx context.Context, id callid.ID) error

	// Claim returns the next ready call-id, or ErrNoReadyWork if none is
	// currently available — callers poll rather than block so a worker
	// can still observe ctx cancellation between claims. The claim is
	// valid until Ack, Nack, or the implementation's visibility timeout
	// elapses.
	Claim(ctx context.Context) (callid.ID, error)

	// Ack confirms a claimed call-id was processed and should not be
	// redelivered.
	Ack(ctx context.Context, id callid.ID) error

	// Nack notifies that a claimed call-id's claim was lost, e.g. after a
	// worker crash or a visibility timeout. It does not make id claimable
	// by itself: SubscribeRequeues delivers the notification to the
	// Scheduler, whose own record must move id back to READY (and Publish
	// it again) before a Claim can see it — otherwise a re-claim of a
	// record still marked RUNNING would be rejected.
	Nack(ctx context.Context, id callid.ID) error

	// PublishCompletion announces that id finished with outcome.
	PublishCompletion(ctx context.Context, c Completion) error

	// SubscribeCompletions returns a channel of completion events. The
	// channel is closed when ctx is cancelled or the broker is closed.
	SubscribeCompletions(ctx context.Context) (<-chan Completion, error)

	// SubscribeRequeues returns a channel of ids that were Nacked and need
	// their owning Scheduler to move them from RUNNING back to READY. The
	// channel is closed when ctx is cancelled or the broker is closed.
	SubscribeRequeues(ctx context.Context) (<-chan callid.ID, error)

	// Close releases any resources the broker holds (connections,
	// goroutines). Sessions call this on teardown.
	Close() error
}
