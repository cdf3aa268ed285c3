package extract

import (
	"errors"
	"strings"

	"tripstats/internal/core"
)

// RowStats counts what happened to the candidate rows of one sheet.
type RowStats struct {
	Scanned      int  `json:"scanned"`
	Retained     int  `json:"retained"`
	Empty        int  `json:"empty"`
	SummaryRows  int  `json:"summary_rows"`
	NoAmount     int  `json:"no_amount"`
	BadAmount    int  `json:"bad_amount"`
	UnknownPlate int  `json:"unknown_plate"`
	Invalid      int  `json:"invalid"`
	HitRowCap    bool `json:"hit_row_cap"`
}

// Dropped is the number of non-empty rows that produced no record.
func (s RowStats) Dropped() int {
	return s.SummaryRows + s.NoAmount + s.BadAmount + s.UnknownPlate + s.Invalid
}

// ExtractRows walks the rows below the header and feeds each non-empty
// description to the layout's FieldExtractor.
//
// The scan ends after MaxEmptyRun consecutive empty description cells or
// MaxRows rows past the header, whichever comes first. Summary rows are
// skipped but still count as data-bearing, so they reset the empty run.
func ExtractRows(g Grid, a Anchors, l Layout, sourceFile string) ([]core.TripRecord, RowStats) {
	var (
		records  []core.TripRecord
		stats    RowStats
		emptyRun int
	)
	if !a.Complete() {
		return nil, stats
	}

	fields := l.fields()
	header := a.HeaderRow()
	descCol, amountCol := a.Description.Col, a.Amount.Col
	maxEmpty, last := l.maxEmptyRun(), header+l.maxRows()

	row := header + 1
	for ; row <= last && emptyRun < maxEmpty; row++ {
		stats.Scanned++
		description := g.Cell(row, descCol)
		if isBlank(description) {
			emptyRun++
			stats.Empty++
			continue
		}
		emptyRun = 0

		if isSummaryRow(description, l.StopWords) {
			stats.SummaryRows++
			continue
		}

		rawAmount := g.Cell(row, amountCol)
		if isBlank(rawAmount) {
			stats.NoAmount++
			continue
		}

		rec, err := fields.Extract(sourceFile, description, rawAmount)
		switch {
		case errors.Is(err, ErrInvalidAmount):
			stats.BadAmount++
			continue
		case errors.Is(err, ErrUnknownPlate):
			stats.UnknownPlate++
			continue
		case err != nil:
			stats.Invalid++
			continue
		}
		if rec.Validate() != nil {
			stats.Invalid++
			continue
		}

		records = append(records, rec)
		stats.Retained++
	}
	stats.HitRowCap = row > last && emptyRun < maxEmpty

	return records, stats
}

func isSummaryRow(description string, stopWords []string) bool {
	lower := strings.ToLower(description)
	for _, w := range stopWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
