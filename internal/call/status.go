package call

import (
	"fmt"

	"github.com/smthngslv/mycelia/internal/callid"
)

// Status is one of a call's states: {PENDING, READY, RUNNING, RESOLVED,
// FAILED}.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusRunning
	StatusResolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusResolved:
		return "RESOLVED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s is one of the two states declares
// terminal: RESOLVED or FAILED. A RESOLVED call may still carry a Forward
// outcome (see Outcome), but its status itself does not change again.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFailed
}

// OutcomeKind tags the shape of a terminal call's result: for RESOLVED, a
// concrete value or a forwarding call-id (continuation target); for
// FAILED, an error descriptor.
type OutcomeKind int

const (
	// OutcomeNone marks a non-terminal Outcome (the zero value).
	OutcomeNone OutcomeKind = iota
	// OutcomeValue carries a concrete result value.
	OutcomeValue
	// OutcomeForward carries a forwarding call-id: the call resolved by
	// tail-calling into another, reported as "RESOLVED-as-forward(C)".
	OutcomeForward
	// OutcomeError carries a terminal failure.
	OutcomeError
)

// Outcome is a call's terminal result, whichever of the three shapes it
// takes.
type Outcome struct {
	Kind    OutcomeKind
	Value   any
	Forward callid.ID
	Err     error
}

// Resolved builds a plain value outcome.
func Resolved(value any) Outcome {
	return Outcome{Kind: OutcomeValue, Value: value}
}

// Forward builds a continuation outcome pointing at target.
func Forward(target callid.ID) Outcome {
	return Outcome{Kind: OutcomeForward, Forward: target}
}

// Failed builds an error outcome.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeValue:
		return fmt.Sprintf("RESOLVED(%v)", o.Value)
	case OutcomeForward:
		return fmt.Sprintf("RESOLVED-as-forward(%s)", o.Forward)
	case OutcomeError:
		return fmt.Sprintf("FAILED(%v)", o.Err)
	default:
		return "none"
	}
}

// Record pairs an immutable Call with its current mutable execution state;
// it is the shape a persisted call table stores one row of.
type Record struct {
	Call      Call
	Status    Status
	Outcome   Outcome
	CreatedAt int64
	UpdatedAt int64
}
