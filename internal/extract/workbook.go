package extract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"tripstats/internal/core"
)

// ErrUnreadableWorkbook wraps failures to open or read the workbook itself.
var ErrUnreadableWorkbook = errors.New("unreadable workbook")

// Result is the outcome of parsing one workbook.
type Result struct {
	SourceFile string
	Sheet      string
	Anchors    Anchors
	Records    []core.TripRecord
	Stats      RowStats
}

// ReadActiveSheet loads the active worksheet of an xlsx buffer as a Grid.
// Cells are read raw, so numbers keep their stored value instead of the
// display format and formulas yield their cached result.
func ReadActiveSheet(buf []byte) (Grid, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return nil, "", fmt.Errorf("%w: open: %v", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, "", fmt.Errorf("%w: no sheets found", ErrUnreadableWorkbook)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, sheet, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadableWorkbook, sheet, err)
	}
	return Grid(rows), sheet, nil
}

// ParseGrid runs header location and row extraction over a grid.
func ParseGrid(g Grid, sourceFile string, l Layout) (Result, error) {
	res := Result{SourceFile: sourceFile}
	anchors, err := LocateHeader(g, l)
	res.Anchors = anchors
	if err != nil {
		return res, err
	}
	res.Records, res.Stats = ExtractRows(g, anchors, l, sourceFile)
	return res, nil
}

// ParseWorkbook extracts the trip records of one uploaded workbook.
//
// A workbook without the header anchors returns ErrStructureNotFound and
// a corrupt one ErrUnreadableWorkbook; in both cases no records are
// returned. A parsed workbook may still yield zero records.
func ParseWorkbook(buf []byte, sourceFile string, l Layout) (Result, error) {
	g, sheet, err := ReadActiveSheet(buf)
	if err != nil {
		return Result{SourceFile: sourceFile, Sheet: sheet}, err
	}
	res, err := ParseGrid(g, sourceFile, l)
	res.Sheet = sheet
	return res, err
}
