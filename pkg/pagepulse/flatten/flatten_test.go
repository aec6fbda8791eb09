package flatten_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepulse/pagepulse/pkg/pagepulse/flatten"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

func TestFlatten_NoActions(t *testing.T) {
	n := record.Normalized{
		PageURL:    "/home",
		TTI:        5,
		TTAR:       7,
		Region:     "eu-west",
		IngestedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	flats := flatten.Flatten(n)
	require.Len(t, flats, 1)
	assert.Equal(t, record.Flat{
		PageURL:    "/home",
		TTI:        5,
		TTAR:       7,
		Region:     "eu-west",
		IngestedAt: n.IngestedAt,
	}, flats[0])
}

func TestFlatten_ThreeActions(t *testing.T) {
	n := record.Normalized{
		PageURL: "/home",
		TTI:     5,
		Actions: []record.Action{
			{Name: "click", TTAR: 10},
			{Name: "scroll", TTAR: 20},
			{Name: "hover"},
		},
	}

	flats := flatten.Flatten(n)
	require.Len(t, flats, 3)

	// Source order preserved, scalars inherited, action TTAR overlaid.
	assert.Equal(t, "click", flats[0].ActionName)
	assert.Equal(t, 10.0, flats[0].TTAR)
	assert.Equal(t, "scroll", flats[1].ActionName)
	assert.Equal(t, 20.0, flats[1].TTAR)
	for _, f := range flats {
		assert.Equal(t, "/home", f.PageURL)
		assert.Equal(t, 5.0, f.TTI)
	}

	// An action without its own TTAR inherits the parent's.
	assert.Equal(t, n.TTAR, flats[2].TTAR)
}

func TestFlatten_ZeroActionTTARInheritsParent(t *testing.T) {
	// Actions carry no presence flag, so a zero TTAR means "not measured"
	// and inherits the parent's value rather than overlaying zero.
	n := record.Normalized{
		PageURL: "/home",
		TTAR:    7,
		Actions: []record.Action{
			{Name: "click", TTAR: 0},
			{Name: "scroll", TTAR: 3},
		},
	}

	flats := flatten.Flatten(n)
	require.Len(t, flats, 2)
	assert.Equal(t, 7.0, flats[0].TTAR)
	assert.Equal(t, 3.0, flats[1].TTAR)
}

func TestFlatten_Restartable(t *testing.T) {
	n := record.Normalized{
		PageURL: "/a",
		Actions: []record.Action{{Name: "x", TTAR: 1}, {Name: "y", TTAR: 2}},
	}
	assert.Equal(t, flatten.Flatten(n), flatten.Flatten(n))
}

func TestFlattenAll(t *testing.T) {
	records := []record.Normalized{
		{PageURL: "/a", Actions: []record.Action{{Name: "x"}, {Name: "y"}}},
		{PageURL: "/b"},
	}

	flats := flatten.FlattenAll(records)
	require.Len(t, flats, 3)
	assert.Equal(t, "/a", flats[0].PageURL)
	assert.Equal(t, "/a", flats[1].PageURL)
	assert.Equal(t, "/b", flats[2].PageURL)
}
