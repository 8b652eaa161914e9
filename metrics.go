package calltrace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// InstrumentationName is the meter name used by NewMetricsHandler callers.
	InstrumentationName = "github.com/zoobzio/calltrace"

	metricSpanTotal    = "calltrace.span.total"
	metricSpanDuration = "calltrace.span.duration"

	outcomeOK    = "ok"
	outcomeError = "error"
)

// NewMetricsHandler returns a SpanHandler that counts completed spans and
// records their duration in milliseconds, split by outcome and root.
//
//	meter := otel.GetMeterProvider().Meter(calltrace.InstrumentationName)
//	handler, err := calltrace.NewMetricsHandler(meter)
//	tracer.OnSpanComplete(handler)
func NewMetricsHandler(meter metric.Meter) (SpanHandler, error) {
	total, err := meter.Int64Counter(
		metricSpanTotal,
		metric.WithDescription("completed spans"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("calltrace: create counter failed: %w", err)
	}

	duration, err := meter.Float64Histogram(
		metricSpanDuration,
		metric.WithDescription("span duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("calltrace: create histogram failed: %w", err)
	}

	return func(record Record) {
		outcome := outcomeOK
		if record.Failed() {
			outcome = outcomeError
		}
		attrs := metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.Bool("root", record.Level == 0),
		)
		ctx := context.Background()
		total.Add(ctx, 1, attrs)
		duration.Record(ctx, float64(record.Duration.Microseconds())/1000, attrs)
	}, nil
}
