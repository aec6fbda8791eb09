// Package sink delivers aggregation results to the downstream stores.
//
// Delivery targets at-least-once semantics: every sink write is an
// idempotent upsert keyed by page_url, so replaying a run converges on the
// same stored state instead of duplicating rows or double-counting metrics.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// Sink is one downstream destination for aggregate rows.
type Sink interface {
	// Name identifies the sink in logs, metrics, and errors.
	Name() string

	// Upsert writes one row, inserting or overwriting by page_url.
	// After a successful return the row must be visible to reads.
	Upsert(ctx context.Context, row record.AggregateRow) error
}

// Result is the outcome of one sink's write for one run.
type Result struct {
	// Sink is the sink name.
	Sink string

	// Rows is the number of rows upserted before success or failure.
	Rows int

	// Duration is how long the write took, for SLA-breach monitoring.
	Duration time.Duration

	// Err is the write failure, nil on success.
	Err error
}

// WriteResult collects the independent outcomes of all sinks.
type WriteResult struct {
	Results []Result
}

// Err returns the first sink failure, or nil if every sink succeeded.
// Partial delivery (one sink updated, one not) still fails the run; the
// next attempt repairs it because upserts are idempotent.
func (w WriteResult) Err() error {
	for _, r := range w.Results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Writer fans aggregation results out to a set of independent sinks.
type Writer struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewWriter creates a Writer over the given sinks.
func NewWriter(sinks ...Sink) *Writer {
	return &Writer{sinks: sinks, logger: slog.Default()}
}

// WithLogger sets the logger for the writer.
func (w *Writer) WithLogger(logger *slog.Logger) *Writer {
	w.logger = logger
	return w
}

// Write upserts every row into every sink. Sinks are written concurrently
// and share no mutable state; success or failure of one neither blocks nor
// rolls back another.
func (w *Writer) Write(ctx context.Context, rows map[string]record.AggregateRow) WriteResult {
	results := make([]Result, len(w.sinks))

	var wg sync.WaitGroup
	for i, s := range w.sinks {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			results[i] = w.writeOne(ctx, s, rows)
		}(i, s)
	}
	wg.Wait()

	return WriteResult{Results: results}
}

// writeOne upserts all rows into a single sink, stopping at the first
// failure.
func (w *Writer) writeOne(ctx context.Context, s Sink, rows map[string]record.AggregateRow) Result {
	start := time.Now()
	res := Result{Sink: s.Name()}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			res.Err = pperrors.Transient(err, "sink write cancelled")
			break
		}
		if err := s.Upsert(ctx, row); err != nil {
			res.Err = &pperrors.SinkError{Sink: s.Name(), Op: "upsert", Wrapped: err}
			break
		}
		res.Rows++
	}

	res.Duration = time.Since(start)
	if res.Err != nil {
		w.logger.Error("sink write failed",
			slog.String("sink", res.Sink),
			slog.Int("rows", res.Rows),
			slog.Float64("duration_ms", float64(res.Duration.Milliseconds())),
			slog.String("error", res.Err.Error()),
		)
	} else {
		w.logger.Debug("sink write completed",
			slog.String("sink", res.Sink),
			slog.Int("rows", res.Rows),
			slog.Float64("duration_ms", float64(res.Duration.Milliseconds())),
		)
	}
	return res
}
