package observability

import (
	"log/slog"
	"time"
)

// SinkOutcome is the per-sink slice of a run report.
type SinkOutcome struct {
	Sink     string        `json:"sink"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
}

// RunReport is the structured per-run event emitted to the observability
// sink. A succeeded run surfaces only these summary counts; an escalated
// one additionally surfaces its last error and attempt history.
type RunReport struct {
	RunID    string        `json:"run_id"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`

	// Per-component record counts.
	Input      int64 `json:"input"`
	Rejected   int64 `json:"rejected"`
	Flattened  int64 `json:"flattened"`
	Aggregated int64 `json:"aggregated"`

	Sinks []SinkOutcome `json:"sinks"`
}

// LogAttrs renders the report as slog attributes.
func (r RunReport) LogAttrs() []any {
	attrs := []any{
		slog.String("run_id", r.RunID),
		slog.Int("attempts", r.Attempts),
		slog.Float64("duration_ms", float64(r.Duration.Milliseconds())),
		slog.Int64("input_records", r.Input),
		slog.Int64("rejected_records", r.Rejected),
		slog.Int64("flattened_records", r.Flattened),
		slog.Int64("aggregated_rows", r.Aggregated),
	}
	for _, s := range r.Sinks {
		attrs = append(attrs, slog.Group(s.Sink,
			slog.Int("rows", s.Rows),
			slog.Float64("duration_ms", float64(s.Duration.Milliseconds())),
			slog.Bool("success", s.Success),
		))
	}
	return attrs
}
