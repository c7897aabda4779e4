package dataoutput

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWellNameWithinAlphabet(t *testing.T) {
	require.Equal(t, "A1", WellName(0, 0))
	require.Equal(t, "B12", WellName(1, 11))
	require.Equal(t, "Z1", WellName(25, 0))
}

func TestWellNameDoubleLetterExtension(t *testing.T) {
	require.Equal(t, "AA1", WellName(26, 0))
	require.Equal(t, "AB1", WellName(27, 0))
}

func TestWellCoordinatesRowMajor(t *testing.T) {
	row, col := WellCoordinates(13, 8, 12, false)
	require.Equal(t, 1, row)
	require.Equal(t, 1, col)
}

func TestWellCoordinatesColumnMajor(t *testing.T) {
	row, col := WellCoordinates(13, 8, 12, true)
	require.Equal(t, 5, row)
	require.Equal(t, 1, col)
}

func TestResolvePlateDimensionsFromPLRState(t *testing.T) {
	rows, cols, err := ResolvePlateDimensions(map[string]any{"rows": 8, "columns": 12}, nil)
	require.NoError(t, err)
	require.Equal(t, 8, rows)
	require.Equal(t, 12, cols)
}

func TestResolvePlateDimensionsFallsBackToDefinition(t *testing.T) {
	rows, cols, err := ResolvePlateDimensions(nil, map[string]any{"rows": float64(16), "columns": float64(24)})
	require.NoError(t, err)
	require.Equal(t, 16, rows)
	require.Equal(t, 24, cols)
}

func TestResolvePlateDimensionsErrorsWhenMissing(t *testing.T) {
	_, _, err := ResolvePlateDimensions(nil, nil)
	require.Error(t, err)
}
