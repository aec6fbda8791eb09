// Package observability provides structured logging, metrics, and tracing
// for pipeline runs.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id and attempt fields.
func EnrichLogger(logger *slog.Logger, runID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a pipeline run attempt.
func LogRunStart(logger *slog.Logger, runID string, attempt int) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run starting",
		slog.String("run_id", runID),
		slog.Int("attempt", attempt),
	)
}

// LogRunComplete logs successful run completion with its summary counts.
func LogRunComplete(logger *slog.Logger, report RunReport) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run completed", report.LogAttrs()...)
}

// LogRunError logs a failed run attempt.
func LogRunError(logger *slog.Logger, runID string, attempt int, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("pipeline run failed",
		slog.String("run_id", runID),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageComplete logs one pipeline stage finishing.
func LogStageComplete(logger *slog.Logger, stage string, records int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage", stage),
		slog.Int64("records", records),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSLABreach logs a run whose total duration exceeded the configured
// threshold. A breach is a monitoring signal, not a run failure.
func LogSLABreach(logger *slog.Logger, runID string, total, threshold time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("run exceeded SLA threshold",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", float64(total.Milliseconds())),
		slog.Float64("threshold_ms", float64(threshold.Milliseconds())),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
