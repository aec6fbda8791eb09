package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang/snappy"

	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// maxLineBytes bounds a single NDJSON line.
const maxLineBytes = 1 << 20

// decodeNDJSON parses newline-delimited JSON objects into raw records, all
// tagged with the given kind. Blank lines are skipped. A malformed line is
// a malformed file, not a per-record rejection: the whole read fails so the
// orchestrator can retry or escalate.
func decodeNDJSON(name string, data []byte, kind record.Kind) ([]record.Raw, error) {
	var records []record.Raw
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal(line, &fields); err != nil {
			return nil, &pperrors.SourceError{
				Source:  name,
				Wrapped: fmt.Errorf("line %d: %w", lineNo, err),
			}
		}

		raw := record.Raw{Kind: kind, Fields: fields}
		if ts, ok := fields["source_time"].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				raw.SourceTime = t
			}
		}
		records = append(records, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, &pperrors.SourceError{Source: name, Wrapped: err}
	}
	return records, nil
}

// maybeDecompress snappy-decodes data when the object name carries a
// .snappy suffix.
func maybeDecompress(name string, data []byte) ([]byte, error) {
	if !strings.HasSuffix(name, ".snappy") {
		return data, nil
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, &pperrors.SourceError{
			Source:  name,
			Wrapped: fmt.Errorf("snappy decode: %w", err),
		}
	}
	return out, nil
}

// File reads raw records from a local NDJSON file, optionally
// snappy-compressed (.snappy suffix).
type File struct {
	// Path is the file path.
	Path string

	// Kind tags every record read from this file.
	Kind record.Kind
}

// Name implements Source.
func (f File) Name() string { return f.Path }

// Read implements Source.
func (f File) Read(_ context.Context) ([]record.Raw, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &pperrors.SourceError{Source: f.Path, Wrapped: err}
	}
	data, err = maybeDecompress(f.Path, data)
	if err != nil {
		return nil, err
	}
	return decodeNDJSON(f.Path, data, f.Kind)
}
