package extract

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"tripstats/internal/extract/extracttest"
)

func TestParseWorkbook(t *testing.T) {
	buf, err := extracttest.Invoice([][2]any{
		{"Склад-Порт, от 06.09.25, а/м 123, Иванов И.И.", 15000.5},
		{"Порт-Склад, от 07.09.25, а/м 456, Петров П.П.", "2 500,00"},
		{"Доставка документов, от 08.09.25", 300},
	})
	if err != nil {
		t.Fatalf("build invoice: %v", err)
	}

	res, err := ParseWorkbook(buf, "sept.xlsx", TripInvoiceLayout())
	if err != nil {
		t.Fatalf("ParseWorkbook: %v", err)
	}
	if res.SourceFile != "sept.xlsx" || res.Sheet != "Sheet1" {
		t.Errorf("unexpected result header: %q %q", res.SourceFile, res.Sheet)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(res.Records), res.Records)
	}

	first := res.Records[0]
	if first.CarPlate != "123" || first.DriverName != "Иванов" || first.TripDate != "06.09.25" || first.Route != "Склад-Порт" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("15000.5")) {
		t.Errorf("first amount = %s", first.Amount)
	}
	if !res.Records[1].Amount.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("second amount = %s", res.Records[1].Amount)
	}
	if res.Stats.UnknownPlate != 1 || res.Stats.SummaryRows != 1 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
	if res.Anchors.Amount.Col != 3 {
		t.Errorf("amount column = %d, want 3 (tax column must be skipped)", res.Anchors.Amount.Col)
	}
}

func TestParseWorkbookUsesActiveSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"no table here"}); err != nil {
		t.Fatal(err)
	}
	idx, err := f.NewSheet("Trips")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Trips", "A1", &[]any{"Товары (работы, услуги)", "Сумма"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Trips", "A2", &[]any{"A-B, car 777, Sidorov S.S.", 42}); err != nil {
		t.Fatal(err)
	}
	f.SetActiveSheet(idx)
	out, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	res, err := ParseWorkbook(out.Bytes(), "active.xlsx", TripInvoiceLayout())
	if err != nil {
		t.Fatalf("ParseWorkbook: %v", err)
	}
	if res.Sheet != "Trips" {
		t.Errorf("sheet = %q, want Trips", res.Sheet)
	}
	if len(res.Records) != 1 || res.Records[0].CarPlate != "777" {
		t.Fatalf("unexpected records: %+v", res.Records)
	}
}

func TestParseWorkbookErrors(t *testing.T) {
	t.Run("corrupt buffer", func(t *testing.T) {
		_, err := ParseWorkbook([]byte("definitely not a zip archive"), "bad.xlsx", TripInvoiceLayout())
		if !errors.Is(err, ErrUnreadableWorkbook) {
			t.Fatalf("expected ErrUnreadableWorkbook, got %v", err)
		}
	})

	t.Run("no header", func(t *testing.T) {
		buf, err := extracttest.Workbook([][]any{
			{"Наименование", "Цена"},
			{"A-B, car 123", 10},
		})
		if err != nil {
			t.Fatal(err)
		}
		res, err := ParseWorkbook(buf, "plain.xlsx", TripInvoiceLayout())
		if !errors.Is(err, ErrStructureNotFound) {
			t.Fatalf("expected ErrStructureNotFound, got %v", err)
		}
		if len(res.Records) != 0 {
			t.Fatalf("expected no records, got %d", len(res.Records))
		}
	})

	t.Run("header without rows", func(t *testing.T) {
		buf, err := extracttest.Invoice(nil)
		if err != nil {
			t.Fatal(err)
		}
		res, err := ParseWorkbook(buf, "empty.xlsx", TripInvoiceLayout())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Records) != 0 {
			t.Fatalf("expected zero records, got %d", len(res.Records))
		}
	})
}
