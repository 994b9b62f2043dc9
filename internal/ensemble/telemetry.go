package ensemble

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("lumin.ensemble")
	meter  = otel.Meter("lumin.ensemble")
)

var (
	eventLatency metric.Float64Histogram
	foldsTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		eventLatency, err = meter.Float64Histogram(
			"lumin_predict_event_latency_seconds",
			metric.WithDescription("Per-event prediction latency of one fold"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		foldsTotal, err = meter.Int64Counter(
			"lumin_predict_folds_total",
			metric.WithDescription("Folds predicted and written back"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startPredictFoldStoreSpan(ctx context.Context, column string, members, multiplicity int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ensemble.PredictFoldStore",
		trace.WithAttributes(
			attribute.String("lumin.column", column),
			attribute.Int("lumin.members", members),
			attribute.Int("lumin.aug_multiplicity", multiplicity),
		),
	)
}

func startPredictArraySpan(ctx context.Context, rows, members int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ensemble.PredictArray",
		trace.WithAttributes(
			attribute.Int("lumin.rows", rows),
			attribute.Int("lumin.members", members),
		),
	)
}

func setRunSpanResult(span trace.Span, r RunReport) {
	span.SetAttributes(
		attribute.String("lumin.run_id", r.RunID),
		attribute.Int("lumin.folds", r.Folds),
		attribute.Int("lumin.events", r.Events),
		attribute.Float64("lumin.mean_event_latency_s", r.MeanEventLatency.Seconds()),
		attribute.Float64("lumin.stderr_event_latency_s", r.StdErrLatency.Seconds()),
	)
}

// recordFoldMetrics counts every written fold. Empty folds add no latency
// sample.
func recordFoldMetrics(ctx context.Context, column string, events int, elapsed time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("column", column))
	foldsTotal.Add(ctx, 1, attrs)
	if events > 0 {
		eventLatency.Record(ctx, (elapsed / time.Duration(events)).Seconds(), attrs)
	}
}
