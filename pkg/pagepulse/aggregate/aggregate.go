// Package aggregate computes per-page running metrics over one run's flat
// records.
//
// The accumulator is sharded so that partitioned input (multiple source
// files processed concurrently) can feed it without a single hot lock.
// Shards keep raw counts and sums; averages are computed once at
// finalization so that merging shards is a plain sum of counts and sums
// (sum-then-divide, never a merge of pre-divided means).
package aggregate

import (
	"fmt"
	"sync"

	"github.com/spaolacci/murmur3"

	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// DefaultShards is the shard count used by New.
const DefaultShards = 16

// accumulator holds the running state for one page_url.
type accumulator struct {
	count   int64
	sumTTI  float64
	sumTTAR float64
}

// shard is an independently locked slice of the key space.
type shard struct {
	mu   sync.Mutex
	accs map[string]*accumulator
}

// Aggregator accumulates flat records for the duration of one run.
// It is safe for concurrent use. State is discarded with the Aggregator
// itself; nothing carries over between runs.
type Aggregator struct {
	shards []*shard
}

// New creates an Aggregator with DefaultShards shards.
func New() *Aggregator {
	return NewSharded(DefaultShards)
}

// NewSharded creates an Aggregator with n shards. n < 1 is treated as 1.
func NewSharded(n int) *Aggregator {
	if n < 1 {
		n = 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{accs: make(map[string]*accumulator)}
	}
	return &Aggregator{shards: shards}
}

// shardFor picks the shard for a key by murmur3 hash.
func (a *Aggregator) shardFor(key string) *shard {
	h := murmur3.Sum32([]byte(key))
	return a.shards[int(h)%len(a.shards)]
}

// Add contributes one flat record to its key's accumulator.
//
// An empty page_url here means the validator's contract was broken upstream;
// that is an invariant violation, not a recoverable condition.
func (a *Aggregator) Add(f record.Flat) error {
	if f.PageURL == "" {
		return pperrors.Invariant(
			fmt.Errorf("flat record with empty page_url reached the aggregator"),
			"aggregate",
		)
	}

	s := a.shardFor(f.PageURL)
	s.mu.Lock()
	acc := s.accs[f.PageURL]
	if acc == nil {
		acc = &accumulator{}
		s.accs[f.PageURL] = acc
	}
	acc.count++
	acc.sumTTI += f.TTI
	acc.sumTTAR += f.TTAR
	s.mu.Unlock()
	return nil
}

// AddAll contributes a batch of flat records, stopping at the first
// invariant violation.
func (a *Aggregator) AddAll(flats []record.Flat) error {
	for _, f := range flats {
		if err := a.Add(f); err != nil {
			return err
		}
	}
	return nil
}

// Merge folds another aggregator's raw state into this one by summing
// counts and sums. Both aggregators must belong to the same run. The other
// aggregator should not be used afterwards.
func (a *Aggregator) Merge(other *Aggregator) {
	for _, os := range other.shards {
		os.mu.Lock()
		for key, oacc := range os.accs {
			s := a.shardFor(key)
			s.mu.Lock()
			acc := s.accs[key]
			if acc == nil {
				acc = &accumulator{}
				s.accs[key] = acc
			}
			acc.count += oacc.count
			acc.sumTTI += oacc.sumTTI
			acc.sumTTAR += oacc.sumTTAR
			s.mu.Unlock()
		}
		os.mu.Unlock()
	}
}

// Rows finalizes the run: for every key with at least one observation it
// divides the sums by the count and returns the resulting rows. The map has
// no ordering guarantee. Keys with zero observations never appear.
func (a *Aggregator) Rows() map[string]record.AggregateRow {
	rows := make(map[string]record.AggregateRow)
	for _, s := range a.shards {
		s.mu.Lock()
		for key, acc := range s.accs {
			if acc.count == 0 {
				continue
			}
			rows[key] = record.AggregateRow{
				PageURL:    key,
				AvgTTI:     acc.sumTTI / float64(acc.count),
				AvgTTAR:    acc.sumTTAR / float64(acc.count),
				EventCount: acc.count,
			}
		}
		s.mu.Unlock()
	}
	return rows
}

// Len returns the number of distinct keys seen so far.
func (a *Aggregator) Len() int {
	n := 0
	for _, s := range a.shards {
		s.mu.Lock()
		n += len(s.accs)
		s.mu.Unlock()
	}
	return n
}
