// Package wsbroker implements internal/broker.Broker for distributed
// workers connected over WebSocket: the Broker Adapter driver used when
// execution is spread across separate worker processes rather than living
// in a single binary.
//
// A Broker runs an http.Handler workers dial into. Ready call-ids queued
// locally via Publish are fanned out round-robin to connected workers as
// "work" frames; a worker answers with "ack", "nack", or "complete" frames,
// which the Broker folds back into its local queue and completion stream.
// Claim/Ack/Nack remain usable by an in-process caller too, so a session
// can mix local and remote workers against the same Broker.
package wsbroker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/smthngslv/mycelia/internal/broker"
	"github.com/smthngslv/mycelia/internal/broker/inmemory"
	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// frameType enumerates the wire protocol between a Broker and one worker
// connection.
const (
	frameWork     = "work"     // server -> worker: here is a ready call-id
	frameAck      = "ack"      // worker -> server: processed, do not redeliver
	frameNack     = "nack"     // worker -> server: claim lost, notify the requeue stream
	frameComplete = "complete" // worker -> server: terminal outcome
)

type frame struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Outcome *wireOutcome `json:"outcome,omitempty"`
}

type wireOutcome struct {
	Kind  int    `json:"kind"`
	Value any    `json:"value,omitempty"`
	Fwd   string `json:"fwd,omitempty"`
	Err   string `json:"err,omitempty"`
}

// Broker fans local.ready out to connected workers and folds their replies
// back into local's completion stream.
type Broker struct {
	local *inmemory.Broker

	mu      sync.Mutex
	workers []*workerConn
	next    int
}

type workerConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (w *workerConn) send(f frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteJSON(f)
}

// New returns a Broker with its internal ready/completion buffers sized as
// given (see inmemory.New).
func New(readyBuffer, completionBuffer int) *Broker {
	return &Broker{local: inmemory.New(readyBuffer, completionBuffer)}
}

// ServeHTTP upgrades a worker connection and begins relaying work to it.
// Mount this under a session's worker-facing listener, e.g. mux.Handle
// ("/workers", b).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("wsbroker: upgrade failed", "error", err)
		return
	}
	wc := &workerConn{ws: conn}

	b.mu.Lock()
	b.workers = append(b.workers, wc)
	b.mu.Unlock()

	slog.Info("wsbroker: worker connected", "remote", r.RemoteAddr)
	defer b.dropWorker(wc)
	b.readLoop(wc)
}

func (b *Broker) dropWorker(wc *workerConn) {
	wc.ws.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.workers {
		if w == wc {
			b.workers = append(b.workers[:i], b.workers[i+1:]...)
			break
		}
	}
}

func (b *Broker) readLoop(wc *workerConn) {
	ctx := context.Background()
	for {
		var f frame
		if err := wc.ws.ReadJSON(&f); err != nil {
			slog.Info("wsbroker: worker disconnected", "error", err)
			return
		}

		var id callid.ID
		if f.ID != "" {
			if err := id.UnmarshalText([]byte(f.ID)); err != nil {
				slog.Warn("wsbroker: malformed frame id", "error", err)
				continue
			}
		}

		switch f.Type {
		case frameAck:
			_ = b.local.Ack(ctx, id)
		case frameNack:
			if err := b.local.Nack(ctx, id); err != nil {
				slog.Warn("wsbroker: requeue failed", "id", id, "error", err)
			}
		case frameComplete:
			outcome := decodeOutcome(f.Outcome)
			if err := b.local.PublishCompletion(ctx, broker.Completion{ID: id, Outcome: outcome}); err != nil {
				slog.Warn("wsbroker: publish completion failed", "id", id, "error", err)
			}
		default:
			slog.Warn("wsbroker: unknown frame type", "type", f.Type)
		}
	}
}

// WorkerConn is the worker side of the wire protocol ServeHTTP speaks: it
// receives "work" frames dispatched by the Broker and answers with "ack",
// "nack", or "complete". DialWorker constructs one; a session's local
// in-process workers never need it, since they call Claim/Ack/Nack on a
// Broker value directly.
type WorkerConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// DialWorker connects to a Broker's ServeHTTP endpoint at url (a ws:// or
// wss:// URL) as a remote worker.
func DialWorker(url string) (*WorkerConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsbroker: dial %s: %w", url, err)
	}
	return &WorkerConn{ws: conn}, nil
}

// Next blocks until the Broker sends a work frame, returning its call-id. Ack/Nack/Complete frames the worker itself just sent are never
// echoed back, so every frame this reads is a genuine work assignment.
func (w *WorkerConn) Next() (callid.ID, error) {
	for {
		var f frame
		if err := w.ws.ReadJSON(&f); err != nil {
			return callid.ID{}, err
		}
		if f.Type != frameWork {
			slog.Warn("wsbroker: worker received unexpected frame", "type", f.Type)
			continue
		}
		var id callid.ID
		if err := id.UnmarshalText([]byte(f.ID)); err != nil {
			return callid.ID{}, fmt.Errorf("wsbroker: malformed work frame id: %w", err)
		}
		return id, nil
	}
}

func (w *WorkerConn) send(f frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteJSON(f)
}

// Ack reports id as processed and not to be redelivered.
func (w *WorkerConn) Ack(id callid.ID) error {
	return w.send(frame{Type: frameAck, ID: id.String()})
}

// Nack reports that id's claim was lost; the Broker forwards it to its
// requeue stream and does not put id back on its queue itself.
func (w *WorkerConn) Nack(id callid.ID) error {
	return w.send(frame{Type: frameNack, ID: id.String()})
}

// Complete reports id's terminal outcome to the Broker.
func (w *WorkerConn) Complete(id callid.ID, outcome call.Outcome) error {
	return w.send(frame{Type: frameComplete, ID: id.String(), Outcome: encodeOutcome(outcome)})
}

// Close closes the underlying connection.
func (w *WorkerConn) Close() error {
	return w.ws.Close()
}

func encodeOutcome(o call.Outcome) *wireOutcome {
	wo := &wireOutcome{Kind: int(o.Kind), Value: o.Value, Fwd: o.Forward.String()}
	if o.Err != nil {
		wo.Err = o.Err.Error()
	}
	return wo
}

func decodeOutcome(w *wireOutcome) call.Outcome {
	if w == nil {
		return call.Outcome{}
	}
	switch call.OutcomeKind(w.Kind) {
	case call.OutcomeValue:
		return call.Resolved(w.Value)
	case call.OutcomeForward:
		var fwd callid.ID
		_ = fwd.UnmarshalText([]byte(w.Fwd))
		return call.Forward(fwd)
	case call.OutcomeError:
		return call.Failed(errorString(w.Err))
	default:
		return call.Outcome{}
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }

// Publish enqueues id locally and, if a worker is connected, also pushes a
// "work" frame to the next worker in round-robin order. Sending the frame
// does not remove id from the local queue, so a local Claim can still
// return the same id.
func (b *Broker) Publish(ctx context.Context, id callid.ID) error {
	if err := b.local.Publish(ctx, id); err != nil {
		return err
	}
	b.dispatchToWorker(id)
	return nil
}

func (b *Broker) dispatchToWorker(id callid.ID) {
	b.mu.Lock()
	if len(b.workers) == 0 {
		b.mu.Unlock()
		return
	}
	wc := b.workers[b.next%len(b.workers)]
	b.next++
	b.mu.Unlock()

	if err := wc.send(frame{Type: frameWork, ID: id.String()}); err != nil {
		slog.Warn("wsbroker: dispatch failed", "id", id, "error", err)
	}
}

func (b *Broker) Claim(ctx context.Context) (callid.ID, error) {
	return b.local.Claim(ctx)
}

func (b *Broker) Ack(ctx context.Context, id callid.ID) error {
	return b.local.Ack(ctx, id)
}

func (b *Broker) Nack(ctx context.Context, id callid.ID) error {
	return b.local.Nack(ctx, id)
}

func (b *Broker) PublishCompletion(ctx context.Context, c broker.Completion) error {
	return b.local.PublishCompletion(ctx, c)
}

func (b *Broker) SubscribeCompletions(ctx context.Context) (<-chan broker.Completion, error) {
	return b.local.SubscribeCompletions(ctx)
}

func (b *Broker) SubscribeRequeues(ctx context.Context) (<-chan callid.ID, error) {
	return b.local.SubscribeRequeues(ctx)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	workers := b.workers
	b.workers = nil
	b.mu.Unlock()

	for _, wc := range workers {
		wc.ws.Close()
	}
	return b.local.Close()
}
