package sheets

import (
	"fmt"
	"strings"

	"tripstats/internal/core"
)

// SheetName is the per-user report tab.
func SheetName(userID int64) string {
	return fmt.Sprintf("Trips %d", userID)
}

// ReportRows lays out a summary as one value grid: overview lines, the
// per-car table and the per-driver table, separated by blank rows.
// Amounts are written as plain decimal strings.
func ReportRows(s core.Summary) [][]any {
	rows := [][]any{
		{"Files", s.FileCount},
		{"Trips", s.TripCount},
		{"Total amount", s.TotalAmount.StringFixed(2)},
		{"Cars", s.CarCount},
		{"Drivers", s.DriverCount},
		{},
		{"Car", "Trips", "Total amount", "Drivers", "Files"},
	}
	for _, c := range s.Cars {
		rows = append(rows, []any{c.Plate, c.TripCount, c.TotalAmount.StringFixed(2), strings.Join(c.Drivers, ", "), strings.Join(c.Files, ", ")})
	}
	rows = append(rows, []any{}, []any{"Driver", "Trips", "Total amount", "Cars", "Files"})
	for _, d := range s.Drivers {
		rows = append(rows, []any{d.Name, d.TripCount, d.TotalAmount.StringFixed(2), strings.Join(d.Cars, ", "), strings.Join(d.Files, ", ")})
	}
	return rows
}
