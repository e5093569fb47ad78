package observability

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/shaharia-lab/brewmcp"

// StartSpan starts a new span with the given name and options. The tracer is
// taken from the provider of the span already in ctx, so callers that never
// configured tracing get no-op spans.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return trace.SpanFromContext(ctx).TracerProvider().
		Tracer(tracerName).
		Start(ctx, name, opts...)
}

// EndSpan records err on span (if any) and ends it. Intended for use with
// defer and a named or captured error.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
