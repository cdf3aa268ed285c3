// Package export renders a user's trip collection as a consolidated workbook.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"tripstats/internal/aggregate"
	"tripstats/internal/core"
)

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("no data to export")

// FileName is the suggested download name of the report.
const FileName = "trip_report.xlsx"

const (
	SheetTrips   = "Trips"
	SheetCars    = "Cars"
	SheetDrivers = "Drivers"

	maxColumnWidth = 80
	amountFormat   = 4 // #,##0.00
)

var (
	tripHeader   = []string{"Source file", "Date", "Route", "Amount", "Car", "Driver"}
	carHeader    = []string{"Car", "Trips", "Total amount", "Drivers", "Files"}
	driverHeader = []string{"Driver", "Trips", "Total amount", "Cars", "Files"}
)

type sheetWriter struct {
	f      *excelize.File
	name   string
	widths []int
	row    int
}

// Workbook writes the records in insertion order plus per-car and
// per-driver rollups and returns the xlsx bytes.
func Workbook(records []core.TripRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}
	summary := aggregate.Aggregate(records)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetTrips); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetCars, SheetDrivers} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: amountFormat})
	if err != nil {
		return nil, fmt.Errorf("amount style: %w", err)
	}

	trips := newSheetWriter(f, SheetTrips, tripHeader)
	for _, r := range records {
		if err := trips.write(r.SourceFile, r.TripDate, r.Route, r.Amount.InexactFloat64(), r.CarPlate, r.DriverName); err != nil {
			return nil, err
		}
	}

	cars := newSheetWriter(f, SheetCars, carHeader)
	for _, c := range summary.Cars {
		if err := cars.write(c.Plate, c.TripCount, c.TotalAmount.InexactFloat64(), join(c.Drivers), join(c.Files)); err != nil {
			return nil, err
		}
	}

	drivers := newSheetWriter(f, SheetDrivers, driverHeader)
	for _, d := range summary.Drivers {
		if err := drivers.write(d.Name, d.TripCount, d.TotalAmount.InexactFloat64(), join(d.Cars), join(d.Files)); err != nil {
			return nil, err
		}
	}

	for _, w := range []struct {
		sw        *sheetWriter
		amountCol int
	}{{trips, 4}, {cars, 3}, {drivers, 3}} {
		if err := w.sw.finish(headerStyle, amountStyle, w.amountCol); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func newSheetWriter(f *excelize.File, name string, header []string) *sheetWriter {
	w := &sheetWriter{f: f, name: name, widths: make([]int, len(header))}
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	// Header writes cannot fail on a freshly created sheet.
	_ = w.write(row...)
	return w
}

func (w *sheetWriter) write(values ...any) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(w.name, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", w.name, w.row, err)
	}
	for i, v := range values {
		if n := utf8.RuneCountInString(display(v)) + 1; n > w.widths[i] {
			w.widths[i] = min(n, maxColumnWidth)
		}
	}
	return nil
}

// finish styles the header and amount column and sizes every column to its content.
func (w *sheetWriter) finish(headerStyle, amountStyle, amountCol int) error {
	last, err := excelize.ColumnNumberToName(len(w.widths))
	if err != nil {
		return err
	}
	if err := w.f.SetCellStyle(w.name, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", w.name, err)
	}
	if w.row > 1 {
		col, err := excelize.ColumnNumberToName(amountCol)
		if err != nil {
			return err
		}
		if err := w.f.SetCellStyle(w.name, fmt.Sprintf("%s2", col), fmt.Sprintf("%s%d", col, w.row), amountStyle); err != nil {
			return fmt.Errorf("style %s amounts: %w", w.name, err)
		}
	}
	for i, width := range w.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.f.SetColWidth(w.name, col, col, float64(width)); err != nil {
			return fmt.Errorf("size %s column %s: %w", w.name, col, err)
		}
	}
	return nil
}

func display(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.2f", x)
	default:
		return fmt.Sprint(x)
	}
}

func join(values []string) string {
	return strings.Join(values, ", ")
}
