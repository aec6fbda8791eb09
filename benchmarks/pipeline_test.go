package benchmarks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/pkg/pagepulse"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/sink"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/source"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/validate"
)

// makeRaws builds n semi-structured raw records over k distinct page URLs.
func makeRaws(n, k int) []record.Raw {
	raws := make([]record.Raw, n)
	for i := range raws {
		raws[i] = record.Raw{
			Kind: record.KindSemiStructured,
			Fields: map[string]any{
				"page_url": fmt.Sprintf("/page/%d", i%k),
				"tti":      float64(i % 50),
				"ttar":     float64(i % 30),
			},
		}
	}
	return raws
}

// BenchmarkValidate measures per-record validation cost.
func BenchmarkValidate(b *testing.B) {
	raws := makeRaws(b.N, 100)
	v := validate.New(validate.NewRunClock(time.Now(), time.Microsecond))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.Validate(raws[i])
	}
}

// BenchmarkPipeline_RunOnce measures a full transform-and-deliver cycle
// against the in-memory search sink.
func BenchmarkPipeline_RunOnce(b *testing.B) {
	for _, n := range []int{100, 10000} {
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			src := source.Slice{Records: makeRaws(n, n / 10)}
			pipe := pagepulse.NewPipeline(src,
				sink.NewWriter(sink.NewSearchIndex()).WithLogger(quiet),
				pagepulse.WithPipelineLogger(quiet),
			)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := pipe.RunOnce(ctx, time.Now()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkAnalyticsStore_Upsert measures sink write cost against SQLite.
func BenchmarkAnalyticsStore_Upsert(b *testing.B) {
	store, err := sink.NewAnalyticsStore(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		row := record.AggregateRow{
			PageURL:    fmt.Sprintf("/page/%d", i%100),
			AvgTTI:     12.5,
			AvgTTAR:    4.2,
			EventCount: int64(i),
		}
		if err := store.Upsert(ctx, row); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchIndex_Upsert measures re-indexing cost, including stale
// posting removal on overwrite.
func BenchmarkSearchIndex_Upsert(b *testing.B) {
	index := sink.NewSearchIndex()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		row := record.AggregateRow{
			PageURL:    fmt.Sprintf("/section/%d/page/%d", i%10, i%100),
			EventCount: int64(i),
		}
		if err := index.Upsert(ctx, row); err != nil {
			b.Fatal(err)
		}
	}
}
