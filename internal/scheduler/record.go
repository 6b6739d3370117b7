package scheduler

import (
	"sync"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
)

// record is the mutable state machine the scheduler layers on top of an
// immutable Call: status, outcome, the dependency count gating readiness,
// and the dependents waiting on this call's resolution.
type record struct {
	mu sync.Mutex

	call        call.Call
	status      call.Status
	outcome     call.Outcome
	pendingDeps int
	dependents  []callid.ID
	done        chan struct{}

	spanEnd EndSpanFunc
}

func newRecord(c call.Call) *record {
	return &record{call: c, status: call.StatusPending, done: make(chan struct{})}
}

// snapshot returns the record's status and outcome under lock.
func (r *record) snapshot() (call.Status, call.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.outcome
}
