package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// QuerySpan wraps a repository span and records db_query_duration_seconds
// when it ends. Every RecordError call also counts towards
// db_query_errors_total.
type QuerySpan struct {
	trace.Span
	start  time.Time
	attrs  metric.MeasurementOption
	failed bool
}

// TrackQuery starts timing query on span. The returned span must be ended
// exactly once, usually with defer.
func TrackQuery(span trace.Span, repo, query string) *QuerySpan {
	return &QuerySpan{
		Span:  span,
		start: time.Now(),
		attrs: metric.WithAttributes(
			attribute.String("repo", repo),
			attribute.String("query", query),
		),
	}
}

func (s *QuerySpan) RecordError(err error, opts ...trace.EventOption) {
	s.failed = true
	s.Span.RecordError(err, opts...)
	Get().DbQueryErrorsTotal.Add(context.Background(), 1, s.attrs)
}

func (s *QuerySpan) End(opts ...trace.SpanEndOption) {
	Get().DbQueryDurationSeconds.Record(context.Background(), time.Since(s.start).Seconds(), s.attrs)
	s.Span.End(opts...)
}

// Failed reports whether an error was recorded on the span.
func (s *QuerySpan) Failed() bool {
	return s.failed
}
