package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"citnet/models"
)

func TestReadSeedIDs(t *testing.T) {
	input := `# seeds for the cosmology sample
1929PNAS...15..168H

1927ASSB...47...49L  Lemaitre
  1998AJ....116.1009R
`
	ids, err := readSeedIDs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"1929PNAS...15..168H", "1927ASSB...47...49L", "1998AJ....116.1009R"}, ids)
}

func TestExpandFlagUsage(t *testing.T) {
	depth := expandCmd.Flags().Lookup("depth")
	require.NotNil(t, depth)
	assert.Contains(t, depth.Usage, "<=0 snowballs without limit")
	assert.Contains(t, depth.Usage, "--years")

	years := expandCmd.Flags().Lookup("years")
	require.NotNil(t, years)
	assert.Contains(t, years.Usage, "both years included")
}

func TestParseDirections(t *testing.T) {
	ds, err := parseDirections("both")
	require.NoError(t, err)
	assert.Equal(t, []models.Direction{models.DirectionReferences, models.DirectionCitations}, ds)

	ds, err = parseDirections("cit")
	require.NoError(t, err)
	assert.Equal(t, []models.Direction{models.DirectionCitations}, ds)

	_, err = parseDirections("up")
	assert.ErrorIs(t, err, models.ErrInvalidDirection)
}

func TestPrintRun(t *testing.T) {
	var buf bytes.Buffer
	printRun(&buf, &models.Run{
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Operation: "expand",
		Argument:  "references",
		Status:    models.RunFinished,
		NewNodes:  3,
		Deferred:  datatypes.JSON(`["B"]`),
	})
	out := buf.String()
	assert.Contains(t, out, "2024-01-02 03:04:05 expand references")
	assert.Contains(t, out, "new_nodes=3")
	assert.Contains(t, out, "deferred:")
	assert.NotContains(t, out, "skipped:")

	buf.Reset()
	printRun(&buf, nil)
	assert.Empty(t, buf.String())
}
