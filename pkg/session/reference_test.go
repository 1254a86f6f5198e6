package session_test

import (
	"testing"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"the first one", 1, true},
		{"First", 1, true},
		{"option 2", 2, true},
		{"#2", 2, true},
		{"the 2nd", 2, true},
		{"second", 2, true},
		{"take the third connection", 3, true},
		{"the last one", -1, true},
		{"that one", 1, true},
		{"3", 3, true},
		{"four", 4, true},
		{"what about tomorrow", 0, false},
		{"option 0", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := session.ParseOrdinal(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolveReference(t *testing.T) {
	m, _ := newManager()
	c := m.GetOrCreate("s1", "en")

	_, ok := m.ResolveReference(c, "the first one")
	assert.False(t, ok, "nothing mentioned yet")

	m.RecordMentions(c, domain.ToolFindTrips, []any{
		map[string]any{"id": "t1"},
		map[string]any{"id": "t2"},
		map[string]any{"id": "t3"},
	})
	m.RecordMentions(c, domain.ToolFindStopPlacesByName, []any{
		map[string]any{"id": "8503000", "name": "Zürich HB"},
		map[string]any{"id": "8507000", "name": "Bern"},
	})

	e, ok := m.ResolveReference(c, "the first one")
	require.True(t, ok)
	assert.Equal(t, 1, e.ReferenceIndex)
	assert.Equal(t, domain.EntityTrip, e.Type)

	e, ok = m.ResolveReference(c, "the last one")
	require.True(t, ok)
	assert.Equal(t, "t3", e.Name)

	e, ok = m.ResolveReference(c, "the second station")
	require.True(t, ok)
	assert.Equal(t, "Bern", e.Name)

	// Trip words restrict the search to trips.
	_, ok = m.ResolveReference(c, "option 5")
	assert.False(t, ok)

	// Without a kind hint trips are searched first.
	e, ok = m.ResolveReference(c, "#2")
	require.True(t, ok)
	assert.Equal(t, "t2", e.Name)
}
