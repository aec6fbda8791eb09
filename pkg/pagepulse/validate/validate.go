// Package validate normalizes raw structured and semi-structured input into
// typed records, rejecting or defaulting invalid fields.
package validate

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// Clock stamps ingestion timestamps. The orchestrator supplies one per run
// so that replaying a run produces identical timestamps for identical input.
type Clock interface {
	// Next returns the next ingestion timestamp. Monotonic within a run.
	Next() time.Time
}

// RunClock is a deterministic Clock: a fixed base time advanced by a fixed
// step per record.
type RunClock struct {
	base time.Time
	step time.Duration
	n    atomic.Int64
}

// NewRunClock creates a run clock starting at base, advancing by step for
// each stamped record.
func NewRunClock(base time.Time, step time.Duration) *RunClock {
	return &RunClock{base: base, step: step}
}

// Next implements Clock.
func (c *RunClock) Next() time.Time {
	n := c.n.Add(1) - 1
	return c.base.Add(time.Duration(n) * c.step)
}

// Structured-schema required fields. Semi-structured input only requires
// page_url; every other field defaults when absent, including region, which
// is descriptive metadata on both kinds.
var structuredRequired = []string{"page_url", "tti"}

// Validator normalizes raw records and counts rejections for the run.
type Validator struct {
	clock Clock

	accepted atomic.Int64
	rejected atomic.Int64
}

// New creates a Validator stamping records from the given clock.
func New(clock Clock) *Validator {
	return &Validator{clock: clock}
}

// Stats holds per-run validation counters.
type Stats struct {
	Accepted int64
	Rejected int64
}

// Stats returns the counters accumulated so far in this run.
func (v *Validator) Stats() Stats {
	return Stats{
		Accepted: v.accepted.Load(),
		Rejected: v.rejected.Load(),
	}
}

// Validate normalizes a raw record. On rejection the returned error is a
// *errors.RejectError; rejected records are counted and must be dropped by
// the caller, never propagated downstream.
func (v *Validator) Validate(raw record.Raw) (record.Normalized, error) {
	norm, err := v.normalize(raw)
	if err != nil {
		v.rejected.Add(1)
		return record.Normalized{}, err
	}
	norm.IngestedAt = v.clock.Next()
	v.accepted.Add(1)
	return norm, nil
}

func (v *Validator) normalize(raw record.Raw) (record.Normalized, error) {
	if !raw.Kind.Valid() {
		return record.Normalized{}, &errors.RejectError{
			Reason: errors.ReasonBadKind,
			Detail: fmt.Sprintf("unknown source kind %q", raw.Kind),
		}
	}

	if raw.Kind == record.KindStructured {
		for _, field := range structuredRequired {
			if _, ok := raw.Field(field); !ok {
				return record.Normalized{}, &errors.RejectError{
					Reason: errors.ReasonMissingField,
					Field:  field,
					Detail: "is required for structured input",
				}
			}
		}
	}

	// page_url is mandatory for every kind and is never defaulted.
	pageURL, err := stringField(raw, "page_url")
	if err != nil {
		return record.Normalized{}, err
	}
	if strings.TrimSpace(pageURL) == "" {
		return record.Normalized{}, &errors.RejectError{
			Reason: errors.ReasonEmptyKey,
			Field:  "page_url",
			Detail: "must be non-empty",
		}
	}

	tti, err := numericField(raw, "tti")
	if err != nil {
		return record.Normalized{}, err
	}
	ttar, err := numericField(raw, "ttar")
	if err != nil {
		return record.Normalized{}, err
	}

	region := ""
	if rv, ok := raw.Field("region"); ok {
		region, ok = rv.(string)
		if !ok {
			return record.Normalized{}, &errors.RejectError{
				Reason: errors.ReasonBadType,
				Field:  "region",
				Detail: fmt.Sprintf("must be a string, got %T", rv),
			}
		}
	}

	actions, err := actionsField(raw)
	if err != nil {
		return record.Normalized{}, err
	}

	return record.Normalized{
		PageURL: pageURL,
		TTI:     tti,
		TTAR:    ttar,
		Region:  region,
		Actions: actions,
	}, nil
}

// stringField extracts a required string field.
func stringField(raw record.Raw, name string) (string, error) {
	val, ok := raw.Field(name)
	if !ok {
		return "", &errors.RejectError{
			Reason: errors.ReasonMissingField,
			Field:  name,
			Detail: "is required",
		}
	}
	s, ok := val.(string)
	if !ok {
		return "", &errors.RejectError{
			Reason: errors.ReasonBadType,
			Field:  name,
			Detail: fmt.Sprintf("must be a string, got %T", val),
		}
	}
	return s, nil
}

// numericField extracts an optional non-negative numeric field.
// Absent fields default to 0 (missing is not invalid for metrics); present
// fields must be numeric and non-negative.
func numericField(raw record.Raw, name string) (float64, error) {
	val, ok := raw.Field(name)
	if !ok {
		return 0, nil
	}
	f, ok := asFloat(val)
	if !ok {
		return 0, &errors.RejectError{
			Reason: errors.ReasonBadType,
			Field:  name,
			Detail: fmt.Sprintf("must be numeric, got %T", val),
		}
	}
	if f < 0 {
		return 0, &errors.RejectError{
			Reason: errors.ReasonBadType,
			Field:  name,
			Detail: fmt.Sprintf("must be non-negative, got %v", f),
		}
	}
	return f, nil
}

// actionsField extracts the optional nested actions collection, preserving
// source order.
func actionsField(raw record.Raw) ([]record.Action, error) {
	val, ok := raw.Field("actions")
	if !ok || val == nil {
		return nil, nil
	}

	switch list := val.(type) {
	case []record.Action:
		return list, nil
	case []any:
		actions := make([]record.Action, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, &errors.RejectError{
					Reason: errors.ReasonBadType,
					Field:  "actions",
					Detail: fmt.Sprintf("elements must be objects, got %T", item),
				}
			}
			var a record.Action
			if nv, ok := m["name"]; ok {
				if s, ok := nv.(string); ok {
					a.Name = s
				}
			}
			if tv, ok := m["ttar"]; ok {
				f, ok := asFloat(tv)
				if !ok || f < 0 {
					return nil, &errors.RejectError{
						Reason: errors.ReasonBadType,
						Field:  "actions.ttar",
						Detail: fmt.Sprintf("must be a non-negative number, got %v", tv),
					}
				}
				a.TTAR = f
			}
			actions = append(actions, a)
		}
		return actions, nil
	default:
		return nil, &errors.RejectError{
			Reason: errors.ReasonBadType,
			Field:  "actions",
			Detail: fmt.Sprintf("must be a list, got %T", val),
		}
	}
}

// asFloat converts the numeric types JSON and YAML decoders produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
