package postgres

import (
	"reflect"
	"testing"

	"tripstats/internal/core"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/trips?sslmode=disable": "pgx5://u:p@localhost:5432/trips?sslmode=disable",
		"postgresql://localhost/trips":                        "pgx5://localhost/trips",
		"pgx5://localhost/trips":                              "pgx5://localhost/trips",
	}
	for in, want := range cases {
		if got := MigrateURL(in); got != want {
			t.Errorf("MigrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDistinctKeepsFirstOccurrence(t *testing.T) {
	records := []core.TripRecord{
		{CarPlate: "456", DriverName: "Petrov"},
		{CarPlate: "123", DriverName: core.UnknownDriver},
		{CarPlate: "456", DriverName: "Ivanov"},
	}
	plates := distinct(records, func(r core.TripRecord) string { return r.CarPlate })
	if !reflect.DeepEqual(plates, []string{"456", "123"}) {
		t.Errorf("plates = %v", plates)
	}
	names := distinct(records, func(r core.TripRecord) string { return r.DriverName })
	if !reflect.DeepEqual(names, []string{"Petrov", core.UnknownDriver, "Ivanov"}) {
		t.Errorf("names = %v", names)
	}
}
