// Package tracing implements internal/scheduler.Tracer over OpenTelemetry:
// a span per call, opened on READY -> RUNNING and closed on the terminal
// transition.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/smthngslv/mycelia/internal/call"
	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/scheduler"
)

// Tracer adapts an otel trace.Tracer to scheduler.Tracer.
type Tracer struct {
	tracer trace.Tracer
}

// New wraps otel.Tracer(name) as a scheduler.Tracer.
func New(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

var _ scheduler.Tracer = (*Tracer)(nil)

// StartSpan opens a span named by ref for the call's RUNNING period and
// returns the function that closes it with the terminal outcome.
func (t *Tracer) StartSpan(ctx context.Context, id callid.ID, ref callid.NodeRef) scheduler.EndSpanFunc {
	_, span := t.tracer.Start(ctx, ref.Node,
		trace.WithAttributes(
			attribute.String("mycelia.call_id", id.String()),
			attribute.String("mycelia.graph_id", ref.GraphID),
			attribute.String("mycelia.node", ref.Node),
		),
	)

	return func(outcome call.Outcome) {
		switch outcome.Kind {
		case call.OutcomeError:
			span.SetStatus(codes.Error, outcome.Err.Error())
			span.RecordError(outcome.Err)
		case call.OutcomeForward:
			span.SetAttributes(attribute.String("mycelia.forward", outcome.Forward.String()))
		}
		span.End()
	}
}

// NewDevelopmentProvider builds a TracerProvider over exporter: batched
// export through an SDK TracerProvider, registered globally so every
// otel.Tracer(...) call (including this package's) picks it up.
func NewDevelopmentProvider(exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp
}
