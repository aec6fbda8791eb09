package pagepulse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/pkg/pagepulse/aggregate"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/flatten"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/observability"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/sink"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/source"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/validate"
)

// clockStep is the ingestion-timestamp increment between records.
const clockStep = time.Microsecond

// partitionStride separates the timestamp lanes of concurrently processed
// partitions so stamps stay deterministic regardless of interleaving.
const partitionStride = time.Minute

// Runner executes one pipeline pass. The orchestrator supervises it as a
// unit of work and never sees individual records.
type Runner interface {
	// RunOnce executes the full pipeline. clockBase anchors the run clock
	// so replaying with the same base and input yields identical
	// ingestion timestamps.
	RunOnce(ctx context.Context, clockBase time.Time) (Counts, error)
}

// Counts are the per-component record counts of one pipeline pass,
// reported to the observability sink.
type Counts struct {
	Input      int64
	Rejected   int64
	Flattened  int64
	Aggregated int64
	Sinks      []observability.SinkOutcome
}

// Pipeline wires Validator -> Flattener -> Aggregator -> Sink Writer over a
// set of input partitions. Partitions are processed concurrently, each into
// its own partial aggregate; partials merge by summing counts and sums
// before the final division.
type Pipeline struct {
	partitions []source.Source
	writer     *sink.Writer
	shards     int

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// Compile-time interface check.
var _ Runner = (*Pipeline)(nil)

// NewPipeline creates a pipeline over one or more input partitions.
func NewPipeline(src source.Source, writer *sink.Writer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		partitions: []source.Source{src},
		writer:     writer,
		shards:     aggregate.DefaultShards,
		logger:     slog.Default(),
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPartitions adds further input partitions processed concurrently with
// the first.
func WithPartitions(srcs ...source.Source) PipelineOption {
	return func(p *Pipeline) {
		p.partitions = append(p.partitions, srcs...)
	}
}

// WithShards sets the aggregator shard count.
func WithShards(n int) PipelineOption {
	return func(p *Pipeline) {
		p.shards = n
	}
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPipelineMetrics sets the metrics recorder.
func WithPipelineMetrics(m observability.MetricsRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithPipelineSpans enables tracing with the given span manager.
func WithPipelineSpans(s observability.SpanManager) PipelineOption {
	return func(p *Pipeline) {
		p.spans = s
	}
}

// partial is one partition's contribution to the run.
type partial struct {
	agg   *aggregate.Aggregator
	stats validate.Stats
	flats int64
	err   error
}

// RunOnce implements Runner.
func (p *Pipeline) RunOnce(ctx context.Context, clockBase time.Time) (Counts, error) {
	var counts Counts

	stageCtx, span := p.spans.StartStageSpan(ctx, "transform")
	done := observability.TimedOperation()

	partials := make([]partial, len(p.partitions))
	var wg sync.WaitGroup
	for i, part := range p.partitions {
		wg.Add(1)
		go func(i int, part source.Source) {
			defer wg.Done()
			// Each partition stamps from its own clock lane so the run
			// replays identically no matter how goroutines interleave.
			lane := clockBase.Add(time.Duration(i) * partitionStride)
			partials[i] = p.runPartition(stageCtx, part, lane)
		}(i, part)
	}
	wg.Wait()

	merged := aggregate.NewSharded(p.shards)
	var firstErr error
	for _, pt := range partials {
		if pt.err != nil && firstErr == nil {
			firstErr = pt.err
		}
		counts.Input += pt.stats.Accepted + pt.stats.Rejected
		counts.Rejected += pt.stats.Rejected
		counts.Flattened += pt.flats
		if pt.agg != nil {
			merged.Merge(pt.agg)
		}
	}

	transformMs := done()
	p.metrics.RecordStage(ctx, "transform", counts.Flattened, time.Duration(transformMs)*time.Millisecond)
	observability.LogStageComplete(p.logger, "transform", counts.Flattened, transformMs)

	if firstErr != nil {
		p.spans.EndSpanWithError(span, firstErr)
		return counts, firstErr
	}

	rows := merged.Rows()
	counts.Aggregated = int64(len(rows))
	p.spans.EndSpanWithError(span, nil)

	writeCtx, writeSpan := p.spans.StartStageSpan(ctx, "deliver")
	res := p.writer.Write(writeCtx, rows)
	for _, r := range res.Results {
		p.metrics.RecordSinkWrite(ctx, r.Sink, r.Rows, r.Duration, r.Err)
		counts.Sinks = append(counts.Sinks, observability.SinkOutcome{
			Sink:     r.Sink,
			Rows:     r.Rows,
			Duration: r.Duration,
			Success:  r.Err == nil,
		})
	}
	err := res.Err()
	p.spans.EndSpanWithError(writeSpan, err)
	return counts, err
}

// runPartition validates, flattens, and aggregates one partition.
func (p *Pipeline) runPartition(ctx context.Context, part source.Source, lane time.Time) partial {
	validator := validate.New(validate.NewRunClock(lane, clockStep))
	agg := aggregate.NewSharded(p.shards)
	pt := partial{agg: agg}

	raws, err := part.Read(ctx)
	if err != nil {
		pt.err = err
		return pt
	}

	for _, raw := range raws {
		norm, err := validator.Validate(raw)
		if err != nil {
			// Rejections are counted by the validator and dropped here;
			// they never abort the run.
			continue
		}
		flats := flatten.Flatten(norm)
		pt.flats += int64(len(flats))
		if err := agg.AddAll(flats); err != nil {
			pt.err = err
			break
		}
	}

	pt.stats = validator.Stats()
	return pt
}
