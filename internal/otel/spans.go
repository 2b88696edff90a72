package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for fastgtpd spans. Command arguments are
// deliberately never attached (§4.I) — only the session ID and the bare
// command name are safe to record, since argument payloads can be large
// or engine-specific.
var (
	AttrSessionID    = attribute.Key("fastgtp.session.id")
	AttrGTPCommand   = attribute.Key("fastgtp.gtp.command")
	AttrGTPIdent     = attribute.Key("fastgtp.gtp.identifier")
	AttrEngineArgv0  = attribute.Key("fastgtp.engine.argv0")
	AttrHTTPRoute    = attribute.Key("fastgtp.http.route")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound REST request.
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartClientSpan starts a span for an outbound call to an engine subprocess.
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
