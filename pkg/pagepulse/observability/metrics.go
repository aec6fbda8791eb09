package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRun records a run attempt completion.
	RecordRun(ctx context.Context, success bool, duration time.Duration)

	// RecordStage records per-stage record counts and latency.
	RecordStage(ctx context.Context, stage string, records int64, duration time.Duration)

	// RecordSinkWrite records one sink's write latency and outcome.
	RecordSinkWrite(ctx context.Context, sinkName string, rows int, duration time.Duration, err error)

	// RecordEscalation records a transition into the escalated state.
	RecordEscalation(ctx context.Context, fatal bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	runs         metric.Int64Counter
	runLatency   metric.Float64Histogram
	stageRecords metric.Int64Counter
	stageLatency metric.Float64Histogram
	sinkWrites   metric.Int64Counter
	sinkLatency  metric.Float64Histogram
	escalations  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("pagepulse")

	runs, err := meter.Int64Counter("pagepulse.run.attempts",
		metric.WithDescription("Number of pipeline run attempts"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("pagepulse.run.latency_ms",
		metric.WithDescription("Run attempt latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageRecords, err := meter.Int64Counter("pagepulse.stage.records",
		metric.WithDescription("Records processed per pipeline stage"),
	)
	if err != nil {
		return nil, err
	}

	stageLatency, err := meter.Float64Histogram("pagepulse.stage.latency_ms",
		metric.WithDescription("Pipeline stage latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sinkWrites, err := meter.Int64Counter("pagepulse.sink.writes",
		metric.WithDescription("Number of sink write operations"),
	)
	if err != nil {
		return nil, err
	}

	sinkLatency, err := meter.Float64Histogram("pagepulse.sink.latency_ms",
		metric.WithDescription("Sink write latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	escalations, err := meter.Int64Counter("pagepulse.run.escalations",
		metric.WithDescription("Number of runs escalated for human approval"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		runs:         runs,
		runLatency:   runLatency,
		stageRecords: stageRecords,
		stageLatency: stageLatency,
		sinkWrites:   sinkWrites,
		sinkLatency:  sinkLatency,
		escalations:  escalations,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordRun records a run attempt.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordStage records stage throughput and latency.
func (m *otelMetrics) RecordStage(ctx context.Context, stage string, records int64, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
	}
	m.stageRecords.Add(ctx, records, metric.WithAttributes(attrs...))
	m.stageLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordSinkWrite records one sink write.
func (m *otelMetrics) RecordSinkWrite(ctx context.Context, sinkName string, rows int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("sink", sinkName),
		attribute.Bool("success", err == nil),
	}
	m.sinkWrites.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sinkLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordEscalation records an escalation.
func (m *otelMetrics) RecordEscalation(ctx context.Context, fatal bool) {
	m.escalations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("fatal", fatal)))
}
