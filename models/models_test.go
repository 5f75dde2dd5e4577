package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("refs")
	require.NoError(t, err)
	assert.Equal(t, DirectionReferences, d)

	d, err = ParseDirection(" Citations ")
	require.NoError(t, err)
	assert.Equal(t, DirectionCitations, d)
	assert.Equal(t, "processed_citations", d.Column())

	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestParseRelationType(t *testing.T) {
	r, err := ParseRelationType("bibcp")
	require.NoError(t, err)
	assert.Equal(t, RelationBibliographicCoupling, r)
	assert.True(t, r.Symmetric())
	assert.Equal(t, "Undirected", r.GephiType())

	r, err = ParseRelationType("direct_citation")
	require.NoError(t, err)
	assert.False(t, r.Symmetric())
	assert.Equal(t, "Directed", r.GephiType())

	_, err = ParseRelationType("pagerank")
	assert.ErrorIs(t, err, ErrInvalidRelation)
	assert.False(t, RelationType("pagerank").Valid())
}

func TestYearInterval(t *testing.T) {
	assert.Equal(t, 1955, YearFromID("1955ApJ...121..161S"))
	assert.Equal(t, 0, YearFromID("ApJ"))

	iv := YearInterval{Start: 1950, End: 2000}
	assert.True(t, iv.Contains("1950ApJ...111..111A"))
	assert.True(t, iv.Contains("2000ApJ...111..111A"))
	assert.False(t, iv.Contains("1949ApJ...111..111A"))
	assert.False(t, iv.Contains("2001ApJ...111..111A"))
	assert.False(t, iv.Contains("xxxx"))

	assert.True(t, YearInterval{}.Contains("xxxx"))
	assert.True(t, YearInterval{Start: 1990}.Contains("2020ApJ...111..111A"))
}
