// Package inmemory implements internal/storage.Storage over a sync.Map:
// the ephemeral, session-scoped Storage Adapter driver used when a session
// has no durable backing store configured.
package inmemory

import (
	"context"
	"sync"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/storage"
)

type resultEntry struct {
	status  call.Status
	outcome call.Outcome
}

// Storage is a sync.Map-backed storage.Storage. It never persists across
// process restarts; every call and result lives only as long as the
// process does.
type Storage struct {
	calls   sync.Map // callid.ID -> call.Call
	results sync.Map // callid.ID -> resultEntry

	mu sync.Mutex // guards CompareAndSwapStatus's read-then-write
}

func New() *Storage {
	return &Storage{}
}

func (s *Storage) PutCall(ctx context.Context, c call.Call) error {
	s.calls.Store(c.ID, c)
	return nil
}

func (s *Storage) GetCall(ctx context.Context, id callid.ID) (call.Call, error) {
	v, ok := s.calls.Load(id)
	if !ok {
		return call.Call{}, storage.ErrNotFound
	}
	return v.(call.Call), nil
}

func (s *Storage) PutResult(ctx context.Context, id callid.ID, status call.Status, outcome call.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results.Store(id, resultEntry{status: status, outcome: outcome})
	return nil
}

func (s *Storage) GetResult(ctx context.Context, id callid.ID) (call.Status, call.Outcome, error) {
	v, ok := s.results.Load(id)
	if !ok {
		return call.StatusPending, call.Outcome{}, storage.ErrNotFound
	}
	e := v.(resultEntry)
	return e.status, e.outcome, nil
}

func (s *Storage) CompareAndSwapStatus(ctx context.Context, id callid.ID, from, to call.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.results.Load(id)
	current := from
	outcome := call.Outcome{}
	if ok {
		e := v.(resultEntry)
		current, outcome = e.status, e.outcome
	}
	if current != from {
		return storage.ErrCASConflict
	}
	s.results.Store(id, resultEntry{status: to, outcome: outcome})
	return nil
}

func (s *Storage) Close() error { return nil }
