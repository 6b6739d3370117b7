// Package badgerstore implements internal/storage.Storage over an embedded
// dgraph-io/badger/v4 instance: the durable Storage Adapter driver a
// session configures when calls must survive a process restart.
//
// Keys are split into two families so a crash-recovery scan can range over
// just the topology or just the results: "c:" + id for a call's topology,
// "r:" + id for its status/outcome. Values are msgpack-encoded DTOs rather
// than the raw call.Call/call.Outcome structs, since an error value's
// concrete type can't survive a round trip through an encoder — only its
// message can.
package badgerstore

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/storage"
)

// Storage wraps an open *badger.DB. Callers own the DB's lifecycle up to
// Close, which this type forwards.
type Storage struct {
	db *badger.DB
}

// Open opens (creating if absent) a Badger database at path and returns a
// Storage backed by it.
func Open(path string) (*Storage, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", path, err)
	}
	return &Storage{db: db}, nil
}

// New wraps an already-open *badger.DB, e.g. one shared with another
// subsystem or opened in-memory for tests via badger.DefaultOptions("").
// WithInMemory(true).
func New(db *badger.DB) *Storage {
	return &Storage{db: db}
}

func callKey(id callid.ID) []byte   { return append([]byte("c:"), id[:]...) }
func resultKey(id callid.ID) []byte { return append([]byte("r:"), id[:]...) }

type slotDTO struct {
	IsRef   bool
	RefID   callid.ID
	Literal any
}

type callDTO struct {
	ID      callid.ID
	GraphID string
	Node    string
	Args    []slotDTO
	Kwargs  map[string]slotDTO
}

func toCallDTO(c call.Call) callDTO {
	args := make([]slotDTO, len(c.Args))
	for i, s := range c.Args {
		args[i] = slotDTO{IsRef: s.IsRef, RefID: s.RefID, Literal: s.Literal}
	}
	kwargs := make(map[string]slotDTO, len(c.Kwargs))
	for k, s := range c.Kwargs {
		kwargs[k] = slotDTO{IsRef: s.IsRef, RefID: s.RefID, Literal: s.Literal}
	}
	return callDTO{
		ID:      c.ID,
		GraphID: c.NodeRef.GraphID,
		Node:    c.NodeRef.Node,
		Args:    args,
		Kwargs:  kwargs,
	}
}

func (d callDTO) toCall() call.Call {
	args := make([]call.Slot, len(d.Args))
	for i, s := range d.Args {
		args[i] = call.Slot{IsRef: s.IsRef, RefID: s.RefID, Literal: s.Literal}
	}
	kwargs := make(map[string]call.Slot, len(d.Kwargs))
	for k, s := range d.Kwargs {
		kwargs[k] = call.Slot{IsRef: s.IsRef, RefID: s.RefID, Literal: s.Literal}
	}
	return call.Call{
		ID:      d.ID,
		NodeRef: callid.NodeRef{GraphID: d.GraphID, Node: d.Node},
		Args:    args,
		Kwargs:  kwargs,
	}
}

type resultDTO struct {
	Status  call.Status
	Kind    call.OutcomeKind
	Value   any
	Forward callid.ID
	ErrMsg  string
}

func toResultDTO(status call.Status, outcome call.Outcome) resultDTO {
	d := resultDTO{Status: status, Kind: outcome.Kind, Value: outcome.Value, Forward: outcome.Forward}
	if outcome.Err != nil {
		d.ErrMsg = outcome.Err.Error()
	}
	return d
}

// storedError is what a FAILED outcome's Err unmarshals to: only the
// message crosses the durability boundary, since persisted errors are
// opaque strings rather than concrete Go error types.
type storedError string

func (e storedError) Error() string { return string(e) }

func (d resultDTO) toOutcome() call.Outcome {
	o := call.Outcome{Kind: d.Kind, Value: d.Value, Forward: d.Forward}
	if d.ErrMsg != "" {
		o.Err = storedError(d.ErrMsg)
	}
	return o
}

func (s *Storage) PutCall(ctx context.Context, c call.Call) error {
	encoded, err := msgpack.Marshal(toCallDTO(c))
	if err != nil {
		return fmt.Errorf("badgerstore: encode call %s: %w", c.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(callKey(c.ID), encoded)
	})
}

func (s *Storage) GetCall(ctx context.Context, id callid.ID) (call.Call, error) {
	var dto callDTO
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(callKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &dto)
		})
	})
	if err != nil {
		return call.Call{}, err
	}
	return dto.toCall(), nil
}

func (s *Storage) PutResult(ctx context.Context, id callid.ID, status call.Status, outcome call.Outcome) error {
	encoded, err := msgpack.Marshal(toResultDTO(status, outcome))
	if err != nil {
		return fmt.Errorf("badgerstore: encode result %s: %w", id, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(resultKey(id), encoded)
	})
}

func (s *Storage) GetResult(ctx context.Context, id callid.ID) (call.Status, call.Outcome, error) {
	var dto resultDTO
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &dto)
		})
	})
	if err != nil {
		return call.StatusPending, call.Outcome{}, err
	}
	return dto.Status, dto.toOutcome(), nil
}

// CompareAndSwapStatus reads the current status inside the same
// transaction that writes the new one, so Badger's transaction conflict
// detection turns a racing pair of CAS calls into one winner and one
// ErrConflict loser rather than a lost update.
func (s *Storage) CompareAndSwapStatus(ctx context.Context, id callid.ID, from, to call.Status) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var dto resultDTO
		item, getErr := txn.Get(resultKey(id))
		current := from
		if getErr == nil {
			if unmarshalErr := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &dto)
			}); unmarshalErr != nil {
				return unmarshalErr
			}
			current = dto.Status
		} else if getErr != badger.ErrKeyNotFound {
			return getErr
		}

		if current != from {
			return storage.ErrCASConflict
		}
		dto.Status = to
		encoded, err := msgpack.Marshal(dto)
		if err != nil {
			return err
		}
		return txn.Set(resultKey(id), encoded)
	})
	if err == badger.ErrConflict {
		return storage.ErrCASConflict
	}
	return err
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Warn("badgerstore: close failed", "error", err)
		return err
	}
	return nil
}
