package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the livelearn tracer.
const tracerName = "github.com/MrWong99/livelearn"

// Tracer returns the livelearn tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. Lecture and chunk ids carried by ctx
// (see [WithLecture]) are attached as span attributes. The caller must call
// span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s, ok := ctx.Value(scopeKey{}).(scope); ok {
		opts = append(opts, trace.WithAttributes(s.attributes()...))
	}
	return Tracer().Start(ctx, name, opts...)
}

// scope identifies the lecture work a context belongs to.
type scope struct {
	lectureID string
	chunkID   string
}

type scopeKey struct{}

func (s scope) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("lecture.id", s.lectureID)}
	if s.chunkID != "" {
		attrs = append(attrs, attribute.String("chunk.id", s.chunkID))
	}
	return attrs
}

// WithLecture returns a context tagged with the lecture and, when non-empty,
// the chunk being processed. [Logger] and [StartSpan] pick the tags up.
func WithLecture(ctx context.Context, lectureID, chunkID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope{lectureID: lectureID, chunkID: chunkID})
}

// LectureID returns the lecture id set by [WithLecture], or "".
func LectureID(ctx context.Context) string {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s.lectureID
}

// CorrelationID returns the trace id of the active span in ctx, or "" when
// there is none. It doubles as the correlation identifier in logs and
// responses.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with the trace and span ids of
// the active span and the lecture tags set by [WithLecture].
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if s, ok := ctx.Value(scopeKey{}).(scope); ok {
		attrs = append(attrs, slog.String("lecture_id", s.lectureID))
		if s.chunkID != "" {
			attrs = append(attrs, slog.String("chunk_id", s.chunkID))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
