// Package inmemory implements internal/broker.Broker with Go channels: the
// default, in-process Broker Adapter driver for a single-binary session
// where no external message broker is wired.
package inmemory

import (
	"context"
	"sync"

	"github.com/smthngslv/mycelia/internal/broker"
	"github.com/smthngslv/mycelia/internal/callid"
)

// Broker is a channel-backed broker.Broker. Publish/Claim/Ack/Nack operate
// on a single buffered ready queue; there is no visibility timeout because
// there is no network partition to model within one process — a crashed
// goroutine simply never acks, and the call is abandoned, which the
// session's cancellation path handles.
type Broker struct {
	ready       chan callid.ID
	completions chan broker.Completion
	requeues    chan callid.ID

	mu     sync.Mutex
	closed bool
}

// New returns a Broker with the given ready-queue and completion-stream
// buffer sizes. The requeue stream shares the ready-queue's buffer size.
func New(readyBuffer, completionBuffer int) *Broker {
	return &Broker{
		ready:       make(chan callid.ID, readyBuffer),
		completions: make(chan broker.Completion, completionBuffer),
		requeues:    make(chan callid.ID, readyBuffer),
	}
}

func (b *Broker) Publish(ctx context.Context, id callid.ID) error {
	select {
	case b.ready <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) Claim(ctx context.Context) (callid.ID, error) {
	select {
	case id, ok := <-b.ready:
		if !ok {
			return callid.ID{}, broker.ErrNoReadyWork
		}
		return id, nil
	case <-ctx.Done():
		return callid.ID{}, ctx.Err()
	default:
		return callid.ID{}, broker.ErrNoReadyWork
	}
}

// Ack is a no-op: a claimed id is already removed from the ready channel,
// so there is nothing further to confirm.
func (b *Broker) Ack(ctx context.Context, id callid.ID) error { return nil }

// Nack notifies the requeue stream that id's claim was lost; it does not
// put id back on the ready queue itself — the Scheduler consuming
// SubscribeRequeues flips id's record back to READY and republishes it.
func (b *Broker) Nack(ctx context.Context, id callid.ID) error {
	select {
	case b.requeues <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// No subscriber currently listening; a lost claim with nobody
		// watching is not an error here, matching PublishCompletion.
		return nil
	}
}

func (b *Broker) SubscribeRequeues(ctx context.Context) (<-chan callid.ID, error) {
	return b.requeues, nil
}

func (b *Broker) PublishCompletion(ctx context.Context, c broker.Completion) error {
	select {
	case b.completions <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// The completion stream is advisory within a single process (the
		// scheduler already applied the result synchronously before
		// publishing it); a full buffer just means no external subscriber
		// is listening, which is not an error here.
		return nil
	}
}

func (b *Broker) SubscribeCompletions(ctx context.Context) (<-chan broker.Completion, error) {
	return b.completions, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.ready)
	close(b.completions)
	close(b.requeues)
	return nil
}
