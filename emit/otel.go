package emit

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter records events as span events on a per-run trace, so a run's
// full node/queue lifecycle is visible in a tracing backend alongside the
// interactive controller's iteration spans. One span is opened lazily per
// RunID on its first event and must be closed explicitly via Close once the
// run terminalizes.
type OTelEmitter struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewOTelEmitter builds an emitter backed by the given tracer (typically
// obtained from an otel/sdk/trace.TracerProvider configured by the host
// application; this package never constructs a provider itself).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer, spans: map[string]trace.Span{}}
}

// Emit records the event as a span event on the run's trace, starting the
// span on first use.
func (o *OTelEmitter) Emit(event Event) {
	span := o.spanFor(event.RunID)
	attrs := []attribute.KeyValue{
		attribute.String("node_id", event.NodeID),
		attribute.Int("step", event.Step),
	}
	for k, v := range event.Meta {
		attrs = append(attrs, attribute.String(k, toString(v)))
	}
	span.AddEvent(event.Msg, trace.WithAttributes(attrs...))
}

// Close ends the span for a run, if one was opened. Safe to call multiple
// times; subsequent events for the same run open a fresh span.
func (o *OTelEmitter) Close(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if span, ok := o.spans[runID]; ok {
		span.End()
		delete(o.spans, runID)
	}
}

func (o *OTelEmitter) spanFor(runID string) trace.Span {
	o.mu.Lock()
	defer o.mu.Unlock()
	if span, ok := o.spans[runID]; ok {
		return span
	}
	_, span := o.tracer.Start(context.Background(), "rlm.run", trace.WithAttributes(attribute.String("run_id", runID)))
	o.spans[runID] = span
	return span
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprint(t)
	}
}
