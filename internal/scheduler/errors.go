package scheduler

import (
	"errors"
	"fmt"

	"github.com/smthngslv/mycelia/internal/callid"
)

// ErrAlreadyHandled is returned by BeginRunning when a claimed call is no
// longer READY — another worker's claim already resolved it, or it was
// eagerly failed by a dependency. The caller should ack the claim and move
// on rather than treat this as an execution failure.
var ErrAlreadyHandled = errors.New("scheduler: call already handled")

// ErrUnknownCall is returned when an operation names a call-id the
// scheduler has no record for.
var ErrUnknownCall = errors.New("scheduler: unknown call")

// DependencyFailedError: a call never ran
// because one of its dependencies failed.
type DependencyFailedError struct {
	DepID callid.ID
	Cause error
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.DepID, e.Cause)
}

func (e *DependencyFailedError) Unwrap() error { return e.Cause }

// NodeExecutionFailureError: the node
// body itself raised an error.
type NodeExecutionFailureError struct {
	Cause error
}

func (e *NodeExecutionFailureError) Error() string {
	return fmt.Sprintf("node execution failed: %v", e.Cause)
}

func (e *NodeExecutionFailureError) Unwrap() error { return e.Cause }

// SessionCancelledError: a call was still PENDING, READY, or RUNNING when
// its owning session closed, so it was failed rather than left dangling.
type SessionCancelledError struct {
	CallID callid.ID
}

func (e *SessionCancelledError) Error() string {
	return fmt.Sprintf("call %s cancelled: session closed", e.CallID)
}

// BrokerUnavailableError wraps an error from the Broker Adapter
// encountered while publishing ready work or a completion. It is retried
// with backoff rather than failing the call it's attached to.
type BrokerUnavailableError struct {
	Cause error
}

func (e *BrokerUnavailableError) Error() string {
	return fmt.Sprintf("broker unavailable: %v", e.Cause)
}

func (e *BrokerUnavailableError) Unwrap() error { return e.Cause }

// StorageUnavailableError wraps an error from the Storage Adapter
// encountered while persisting a call or its result. It is retried with
// backoff rather than failing the call it's attached to.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }
