package dataoutput

import (
	"strings"

	"github.com/autolab-io/workcellcore/workcellerrors"
)

// WellName converts a zero-based (row, col) pair to its well label: row
// 0..25 maps to 'A'..'Z', continuing 'AA', 'AB', ... beyond 26 rows;
// column is 1-indexed. (0,0) -> "A1", (1,11) -> "B12".
func WellName(row, col int) string {
	return rowLetters(row) + itoa(col+1)
}

// rowLetters is the 0-indexed analogue of spreadsheet column naming: it
// never runs out of letters, unlike the 26-row assumption the original
// plate model carried.
func rowLetters(row int) string {
	n := row + 1
	var b strings.Builder
	var letters []byte
	for n > 0 {
		n--
		letters = append(letters, byte('A'+n%26))
		n /= 26
	}
	for i := len(letters) - 1; i >= 0; i-- {
		b.WriteByte(letters[i])
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// WellCoordinates derives (row, col) for flat-array index idx against a
// rows x columns plate. Row-major is the default (index = row*columns +
// col); columnMajor swaps the derivation.
func WellCoordinates(idx, rows, columns int, columnMajor bool) (row, col int) {
	if columnMajor {
		return idx % rows, idx / rows
	}
	return idx / columns, idx % columns
}

// ResolvePlateDimensions reads rows/columns out of a plr_state bag, falling
// back to a definition's bag when the resource's own state doesn't carry
// dimensions.
func ResolvePlateDimensions(plrState, definitionDetails map[string]any) (rows, columns int, err error) {
	rows, columns, ok := dimsFrom(plrState)
	if !ok {
		rows, columns, ok = dimsFrom(definitionDetails)
	}
	if !ok || rows <= 0 || columns <= 0 {
		return 0, 0, workcellerrors.NewInvalidPlateDimensions(rows, columns, "could not determine positive rows/columns from plr_state or definition")
	}
	return rows, columns, nil
}

func dimsFrom(bag map[string]any) (rows, columns int, ok bool) {
	if bag == nil {
		return 0, 0, false
	}
	r, rok := toInt(bag["rows"])
	c, cok := toInt(bag["columns"])
	return r, c, rok && cok
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
