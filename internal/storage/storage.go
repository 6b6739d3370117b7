// Package storage defines the Storage Adapter: the durable map from
// call-id to {status, result} that underlies memoization and crash
// tolerance.
package storage

import (
	"context"
	"errors"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
)

// ErrNotFound is returned by GetCall/GetResult when no record exists for
// the requested id.
var ErrNotFound = errors.New("storage: record not found")

// ErrCASConflict is returned by CompareAndSwapStatus when the stored status
// did not match the expected "from" value — the second worker observing
// the conflict discards its result rather than retrying.
var ErrCASConflict = errors.New("storage: compare-and-swap conflict")

// Storage is the abstract Storage Adapter: put-call(record), get-call(id),
// put-result(id, value), get-result(id) -> value | forward(id) | missing,
// and a compare-and-swap status transition. A Postgres-backed driver is
// explicitly out of scope; implementations here are
// internal/storage/inmemory (ephemeral, session-scoped) and
// internal/storage/badgerstore (durable, embedded).
type Storage interface {
	// PutCall writes a call's topology (node_ref, args, kwargs) the first
	// time it is registered.
	PutCall(ctx context.Context, c call.Call) error

	// GetCall retrieves a call's topology by id. Returns ErrNotFound if
	// absent.
	GetCall(ctx context.Context, id callid.ID) (call.Call, error)

	// PutResult durably records c's terminal outcome (a value, a forward,
	// or an error) alongside its status.
	PutResult(ctx context.Context, id callid.ID, status call.Status, outcome call.Outcome) error

	// GetResult retrieves a call's current status and outcome. Returns
	// ErrNotFound if the call has never been put.
	GetResult(ctx context.Context, id callid.ID) (call.Status, call.Outcome, error)

	// CompareAndSwapStatus atomically transitions id from `from` to `to`,
	// enforcing that RUNNING -> RESOLVED|FAILED|FORWARD succeeds exactly
	// once. Returns ErrCASConflict if the stored status was not `from`.
	CompareAndSwapStatus(ctx context.Context, id callid.ID, from, to call.Status) error

	// Close releases any resources the storage driver holds.
	Close() error
}
