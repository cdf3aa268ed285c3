// Package extracttest builds in-memory invoice workbooks for tests.
package extracttest

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Workbook writes rows into the first sheet of a new xlsx file and returns
// its bytes. Row i of rows lands on spreadsheet row i+1, starting at column A.
func Workbook(rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Invoice returns a typical transport invoice: a preamble, the goods and
// services header with a tax column, the given trip lines and a totals footer.
// Each line is {description, amount}.
func Invoice(lines [][2]any) ([]byte, error) {
	rows := [][]any{
		{"Счёт-фактура № 42 от 30.09.25"},
		{"Поставщик: ООО Перевозчик"},
		{},
		{"№", "Товары (работы, услуги)", "Кол-во", "Сумма", "Сумма с НДС"},
	}
	for i, l := range lines {
		rows = append(rows, []any{i + 1, l[0], 1, l[1], l[1]})
	}
	rows = append(rows, []any{"", "Итого", "", 0, 0})
	return Workbook(rows)
}
