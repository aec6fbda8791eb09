package sink

import (
	"context"
	"sync/atomic"

	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// Flaky wraps a Sink and fails the first FailFirst upserts with the given
// error. Used in tests and fault-injection drills to exercise the retry
// state machine against transient sink unavailability.
type Flaky struct {
	// Inner is the wrapped sink.
	Inner Sink

	// FailFirst is how many upserts fail before the sink recovers.
	FailFirst int64

	// Err is the error returned while failing.
	Err error

	calls atomic.Int64
}

// Name implements Sink.
func (f *Flaky) Name() string { return f.Inner.Name() }

// Upsert implements Sink.
func (f *Flaky) Upsert(ctx context.Context, row record.AggregateRow) error {
	if f.calls.Add(1) <= f.FailFirst {
		return f.Err
	}
	return f.Inner.Upsert(ctx, row)
}

// Calls returns the number of upserts attempted so far.
func (f *Flaky) Calls() int64 {
	return f.calls.Load()
}
