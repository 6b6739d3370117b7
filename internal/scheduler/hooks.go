package scheduler

import (
	"context"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
)

// EndSpanFunc closes a span a Tracer opened for a call's RUNNING period.
type EndSpanFunc func(outcome call.Outcome)

// Tracer is the abstract observability hook: the scheduler emits
// span-start on the READY -> RUNNING transition and span-end on the
// terminal transition, wired to whatever tracing sink the caller chooses.
// internal/tracing provides the concrete OpenTelemetry backing; tests and
// sessions that don't care about tracing pass nil.
type Tracer interface {
	StartSpan(ctx context.Context, id callid.ID, ref callid.NodeRef) EndSpanFunc
}

// Metrics is the scheduler/executor counters hook, backed concretely by
// internal/metrics (Prometheus). Like Tracer, it is optional.
type Metrics interface {
	ObserveReady(ref callid.NodeRef)
	ObserveDispatched(ref callid.NodeRef)
	ObserveResolved(ref callid.NodeRef)
	ObserveFailed(ref callid.NodeRef)
}
