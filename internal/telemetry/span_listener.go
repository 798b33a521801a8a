package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

const instrumentationName = "github.com/JakeFAU/progress-monitor/internal/telemetry"

// SpanListener records one span per progress source, from ProgressStart to
// ProgressFinish, with a span event for every coalesced update.
type SpanListener struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

var _ progress.Listener = (*SpanListener)(nil)

// NewSpanListener uses tp, or the global tracer provider when tp is nil.
func NewSpanListener(tp trace.TracerProvider) *SpanListener {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SpanListener{
		tracer: tp.Tracer(instrumentationName),
		spans:  make(map[string]trace.Span),
	}
}

// ProgressStart opens the source span.
func (l *SpanListener) ProgressStart(e progress.Event) {
	_, span := l.tracer.Start(context.Background(), "progress "+e.Method,
		trace.WithTimestamp(e.TS),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("progress.source_id", e.SourceID),
			attribute.String("progress.resource", e.Resource),
			attribute.String("progress.method", e.Method),
			attribute.Int64("progress.expected", e.Expected),
		),
	)
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.spans[e.SourceID]; ok {
		prev.End()
	}
	l.spans[e.SourceID] = span
}

// ProgressUpdate adds a span event with the current count.
func (l *SpanListener) ProgressUpdate(e progress.Event) {
	span := l.lookup(e.SourceID, false)
	if span == nil {
		return
	}
	span.AddEvent("progress.update",
		trace.WithTimestamp(e.TS),
		trace.WithAttributes(attribute.Int64("progress.bytes", e.Progress)),
	)
}

// ProgressFinish closes the span. Transfers that stopped short of a known
// total are marked as errors.
func (l *SpanListener) ProgressFinish(e progress.Event) {
	span := l.lookup(e.SourceID, true)
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int64("progress.bytes", e.Progress),
		attribute.String("progress.content_type", e.ContentType),
		attribute.Bool("progress.complete", e.Complete()),
	)
	if e.Complete() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "transfer abandoned")
	}
	span.End(trace.WithTimestamp(e.TS))
}

// Active returns the number of open spans.
func (l *SpanListener) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spans)
}

func (l *SpanListener) lookup(id string, remove bool) trace.Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	span, ok := l.spans[id]
	if !ok {
		return nil
	}
	if remove {
		delete(l.spans, id)
	}
	return span
}
