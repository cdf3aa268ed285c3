package extract

import "strings"

// Grid is a worksheet as rows of cell text. Rows may be ragged; missing
// cells read as empty. Indices are zero-based.
type Grid [][]string

// Cell returns the text at (row, col) or "" outside the grid.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) {
		return ""
	}
	r := g[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Rows returns the number of rows.
func (g Grid) Rows() int {
	return len(g)
}

// Position is a zero-based (row, column) cell coordinate.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
