// Package record defines the record shapes that flow through the pipeline:
// raw input, normalized, flattened, and aggregated.
package record

import "time"

// Kind tags the source shape of a raw record.
type Kind string

// Source kind constants.
const (
	KindStructured     Kind = "structured"
	KindSemiStructured Kind = "semi_structured"
)

// Valid reports whether k is a known source kind.
func (k Kind) Valid() bool {
	return k == KindStructured || k == KindSemiStructured
}

// Raw is an untyped input record as read from a source.
// It is immutable once read; pipeline stages never mutate Fields.
type Raw struct {
	// Kind declares the source shape and selects the validation schema.
	Kind Kind `json:"kind"`

	// Fields holds the arbitrary field mapping from the source.
	Fields map[string]any `json:"fields"`

	// SourceTime is the timestamp carried by the source itself.
	SourceTime time.Time `json:"source_time"`
}

// Field returns the raw value for a field name.
func (r Raw) Field(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Action is a nested sub-event carried by a record.
// A record may carry zero or more actions; flattening expands them.
type Action struct {
	// Name identifies the user action (e.g., "click", "scroll").
	Name string `json:"name"`

	// TTAR is the time-to-action-response for this action, in milliseconds.
	// Zero means the action did not report one.
	TTAR float64 `json:"ttar"`
}

// Normalized is the typed projection of a Raw record after validation.
type Normalized struct {
	// PageURL is the aggregation key. Never empty: records with a missing
	// or empty page_url are rejected by the validator, not defaulted.
	PageURL string `json:"page_url"`

	// TTI is time-to-interactive in milliseconds. Defaults to 0 when the
	// source omitted it.
	TTI float64 `json:"tti"`

	// TTAR is time-to-action-response in milliseconds. Defaults to 0 when
	// the source omitted it.
	TTAR float64 `json:"ttar"`

	// Region is the categorical region from structured sources; empty for
	// semi-structured input.
	Region string `json:"region,omitempty"`

	// Actions holds the nested sub-events, in source order.
	Actions []Action `json:"actions,omitempty"`

	// IngestedAt is stamped from the run clock at normalization time.
	// Replaying the same run input yields identical stamps.
	IngestedAt time.Time `json:"ingested_at"`
}

// Flat is one Normalized record paired with at most one action.
// A record with no actions flattens to exactly one Flat with ActionName
// empty; a record with N actions flattens to N Flats.
type Flat struct {
	PageURL    string    `json:"page_url"`
	TTI        float64   `json:"tti"`
	TTAR       float64   `json:"ttar"`
	Region     string    `json:"region,omitempty"`
	ActionName string    `json:"action_name,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// AggregateRow is the per-key aggregation result for one run.
type AggregateRow struct {
	// PageURL is the aggregation key.
	PageURL string `json:"page_url"`

	// AvgTTI is the mean TTI over all flat records for this key.
	AvgTTI float64 `json:"avg_tti"`

	// AvgTTAR is the mean TTAR over all flat records for this key.
	AvgTTAR float64 `json:"avg_ttar"`

	// EventCount is the number of flat records that contributed.
	// Always >= 1: keys with zero observations produce no row.
	EventCount int64 `json:"event_count"`
}
