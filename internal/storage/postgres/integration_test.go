//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"tripstats/internal/core"
	"tripstats/internal/trips"
)

// Run with: DATABASE_URL=postgres://... go test -tags=integration ./internal/storage/postgres
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	const user = 987654321
	if _, err := s.Clear(ctx, user); err != nil {
		t.Fatalf("initial clear: %v", err)
	}

	r := core.TripRecord{
		SourceFile: "it.xlsx",
		TripDate:   "06.09.25",
		Route:      "Depot-Port",
		Amount:     decimal.RequireFromString("15000.50"),
		CarPlate:   "123",
		DriverName: "Ivanov",
	}
	n, err := s.Append(ctx, user, []core.TripRecord{r, r})
	if err != nil || n != 1 {
		t.Fatalf("expected identical tuples to coalesce: n=%d err=%v", n, err)
	}
	if _, err := s.Append(ctx, user, []core.TripRecord{r}); !errors.Is(err, trips.ErrDuplicateFile) {
		t.Fatalf("expected ErrDuplicateFile, got %v", err)
	}

	got, err := s.List(ctx, user)
	if err != nil || len(got) != 1 || !got[0].Amount.Equal(r.Amount) {
		t.Fatalf("unexpected list: %+v err=%v", got, err)
	}
	files, err := s.DistinctFiles(ctx, user)
	if err != nil || len(files) != 1 {
		t.Fatalf("unexpected files: %v err=%v", files, err)
	}
	if n, err := s.Clear(ctx, user); err != nil || n != 1 {
		t.Fatalf("unexpected clear: n=%d err=%v", n, err)
	}
}
