package extract

import (
	"errors"
	"strings"
)

// ErrStructureNotFound means the description or amount header is missing.
// The document yields no records.
var ErrStructureNotFound = errors.New("invoice table structure not found")

// Anchors are the located header cells. A nil pointer means not found.
type Anchors struct {
	Description *Position
	Amount      *Position
}

// Complete reports whether both anchors were found.
func (a Anchors) Complete() bool {
	return a.Description != nil && a.Amount != nil
}

// HeaderRow is the lowest row holding an anchor; header cells may sit on
// different rows when they are merged.
func (a Anchors) HeaderRow() int {
	row := -1
	if a.Description != nil && a.Description.Row > row {
		row = a.Description.Row
	}
	if a.Amount != nil && a.Amount.Row > row {
		row = a.Amount.Row
	}
	return row
}

// FindAnchors scans every non-empty cell in row-major order. The first
// cell matching a marker wins for each anchor, so later footer text such
// as "amount in words" cannot move an anchor already found.
func FindAnchors(g Grid, l Layout) Anchors {
	var a Anchors
	for r, row := range g {
		for c, raw := range row {
			text := strings.TrimSpace(raw)
			if text == "" {
				continue
			}
			if a.Description == nil && containsAny(text, l.DescriptionMarkers) {
				a.Description = &Position{Row: r, Col: c}
				continue
			}
			if a.Amount == nil && containsAny(text, l.AmountMarkers) && !containsAny(text, l.AmountExcludeMarkers) {
				a.Amount = &Position{Row: r, Col: c}
			}
		}
		if a.Complete() {
			return a
		}
	}
	return a
}

// LocateHeader returns the anchors or ErrStructureNotFound when either is
// missing. No partial layout is attempted.
func LocateHeader(g Grid, l Layout) (Anchors, error) {
	a := FindAnchors(g, l)
	if !a.Complete() {
		return a, ErrStructureNotFound
	}
	return a, nil
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}
