package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for spans around engine operations.
const (
	AttrPeer        = "client.address"
	AttrSession     = "fix.session"
	AttrMsgType     = "fix.msg_type"
	AttrSeq         = "fix.seq"
	AttrDirection   = "fix.direction"
	AttrBeginString = "fix.begin_string"
	AttrFrameBytes  = "fix.frame_bytes"
)

// StartSpan starts a new span with the given name. The caller must
// call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span in the context.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span and marks it as
// failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// MessageAttrs builds the standard attribute set for one message.
func MessageAttrs(sessionID, msgType string, seq uint32, direction string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSession, sessionID),
		attribute.String(AttrMsgType, msgType),
		attribute.Int64(AttrSeq, int64(seq)),
		attribute.String(AttrDirection, direction),
	}
}

// TraceID returns the trace ID from the current span context, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the span ID from the current span context, or "".
func SpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}
