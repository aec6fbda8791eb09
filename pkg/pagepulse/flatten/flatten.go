// Package flatten expands nested per-record action collections into
// independent flat records.
package flatten

import "github.com/pagepulse/pagepulse/pkg/pagepulse/record"

// Flatten expands a normalized record into flat records, one per nested
// action. A record with no actions yields exactly one flat record carrying
// the parent fields unchanged; an empty nested collection never drops the
// parent.
//
// Output order matches the source action order. Flatten is a pure function
// of its input, so re-invoking it on the same record yields the same
// sequence.
func Flatten(n record.Normalized) []record.Flat {
	if len(n.Actions) == 0 {
		return []record.Flat{flat(n, record.Action{}, false)}
	}

	out := make([]record.Flat, 0, len(n.Actions))
	for _, a := range n.Actions {
		out = append(out, flat(n, a, true))
	}
	return out
}

// FlattenAll expands a batch of normalized records, preserving record order.
func FlattenAll(records []record.Normalized) []record.Flat {
	out := make([]record.Flat, 0, len(records))
	for _, n := range records {
		out = append(out, Flatten(n)...)
	}
	return out
}

// flat builds one flat record: scalars inherited from the parent, the
// action's own fields overlaid on top.
func flat(n record.Normalized, a record.Action, withAction bool) record.Flat {
	f := record.Flat{
		PageURL:    n.PageURL,
		TTI:        n.TTI,
		TTAR:       n.TTAR,
		Region:     n.Region,
		IngestedAt: n.IngestedAt,
	}
	if withAction {
		f.ActionName = a.Name
		if a.TTAR != 0 {
			f.TTAR = a.TTAR
		}
	}
	return f
}
