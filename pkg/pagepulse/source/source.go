// Package source provides the input side of the pipeline: readable
// collections of raw records, partitioned by source kind.
//
// The pipeline consumes only the Source interface and assumes nothing about
// the underlying storage.
package source

import (
	"context"

	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// Source is one readable partition of raw records.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Read returns the partition's records. Transient read failures are
	// reported as *errors.SourceError so the orchestrator retries them.
	Read(ctx context.Context) ([]record.Raw, error)
}

// Slice is an in-memory Source, used by tests and examples.
type Slice struct {
	// SourceName labels the slice in logs.
	SourceName string

	// Records is returned verbatim by Read.
	Records []record.Raw
}

// Name implements Source.
func (s Slice) Name() string {
	if s.SourceName == "" {
		return "slice"
	}
	return s.SourceName
}

// Read implements Source.
func (s Slice) Read(_ context.Context) ([]record.Raw, error) {
	return s.Records, nil
}

// Multi concatenates partitioned sources in declaration order, e.g. a
// structured partition followed by a semi-structured one.
type Multi struct {
	Sources []Source
}

// Name implements Source.
func (m Multi) Name() string { return "multi" }

// Read implements Source.
func (m Multi) Read(ctx context.Context) ([]record.Raw, error) {
	var all []record.Raw
	for _, s := range m.Sources {
		if err := ctx.Err(); err != nil {
			return nil, &pperrors.SourceError{Source: s.Name(), Wrapped: err}
		}
		records, err := s.Read(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}
