// Package aggregate folds trip records into per-car, per-driver and
// per-file rollups and rankings.
//
// Every function is pure: the same input sequence always produces the same
// output, including the order of entries, so callers can render or export
// the result byte for byte.
package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"tripstats/internal/core"
)

// DefaultTopN is the ranking size used when callers pass n <= 0.
const DefaultTopN = 5

// orderedSet keeps distinct strings in first-occurrence order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) slice() []string {
	if len(s.items) == 0 {
		return []string{}
	}
	return s.items
}

type carAcc struct {
	summary core.CarSummary
	drivers orderedSet
	files   orderedSet
}

type driverAcc struct {
	summary core.DriverSummary
	cars    orderedSet
	files   orderedSet
}

// Aggregate computes the summary of records in a single pass. Records with
// the unknown-driver sentinel count toward car, file and grand totals but
// never produce a driver entry.
func Aggregate(records []core.TripRecord) core.Summary {
	var (
		cars    []*carAcc
		drivers []*driverAcc
		files   []*core.FileSummary
	)
	carIdx := make(map[string]*carAcc)
	driverIdx := make(map[string]*driverAcc)
	fileIdx := make(map[string]*core.FileSummary)

	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)

		c, ok := carIdx[r.CarPlate]
		if !ok {
			c = &carAcc{summary: core.CarSummary{Plate: r.CarPlate, TotalAmount: decimal.Zero}}
			carIdx[r.CarPlate] = c
			cars = append(cars, c)
		}
		c.summary.TripCount++
		c.summary.TotalAmount = c.summary.TotalAmount.Add(r.Amount)
		c.files.add(r.SourceFile)
		if r.HasDriver() {
			c.drivers.add(r.DriverName)

			d, ok := driverIdx[r.DriverName]
			if !ok {
				d = &driverAcc{summary: core.DriverSummary{Name: r.DriverName, TotalAmount: decimal.Zero}}
				driverIdx[r.DriverName] = d
				drivers = append(drivers, d)
			}
			d.summary.TripCount++
			d.summary.TotalAmount = d.summary.TotalAmount.Add(r.Amount)
			d.cars.add(r.CarPlate)
			d.files.add(r.SourceFile)
		}

		f, ok := fileIdx[r.SourceFile]
		if !ok {
			f = &core.FileSummary{File: r.SourceFile, TotalAmount: decimal.Zero}
			fileIdx[r.SourceFile] = f
			files = append(files, f)
		}
		f.TripCount++
		f.TotalAmount = f.TotalAmount.Add(r.Amount)
	}

	out := core.Summary{
		Overview: core.Overview{
			TripCount:   len(records),
			TotalAmount: total,
			FileCount:   len(files),
			CarCount:    len(cars),
			DriverCount: len(drivers),
		},
		Cars:    make([]core.CarSummary, 0, len(cars)),
		Drivers: make([]core.DriverSummary, 0, len(drivers)),
		Files:   make([]core.FileSummary, 0, len(files)),
	}
	for _, c := range cars {
		c.summary.Drivers = c.drivers.slice()
		c.summary.Files = c.files.slice()
		out.Cars = append(out.Cars, c.summary)
	}
	for _, d := range drivers {
		d.summary.Cars = d.cars.slice()
		d.summary.Files = d.files.slice()
		out.Drivers = append(out.Drivers, d.summary)
	}
	for _, f := range files {
		out.Files = append(out.Files, *f)
	}
	return out
}

// TopCars returns the n cars with the highest total amount. Ties keep
// first-occurrence order.
func TopCars(s core.Summary, n int) []core.CarSummary {
	ranked := append([]core.CarSummary(nil), s.Cars...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalAmount.GreaterThan(ranked[j].TotalAmount)
	})
	return ranked[:limit(n, len(ranked))]
}

// TopDrivers returns the n drivers with the highest total amount. Ties keep
// first-occurrence order.
func TopDrivers(s core.Summary, n int) []core.DriverSummary {
	ranked := append([]core.DriverSummary(nil), s.Drivers...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalAmount.GreaterThan(ranked[j].TotalAmount)
	})
	return ranked[:limit(n, len(ranked))]
}

// Top ranks both cars and drivers.
func Top(s core.Summary, n int) core.Ranking {
	return core.Ranking{
		Cars:    TopCars(s, n),
		Drivers: TopDrivers(s, n),
	}
}

// FindCar returns the summary of one plate.
func FindCar(s core.Summary, plate string) (core.CarSummary, bool) {
	plate = strings.TrimSpace(plate)
	for _, c := range s.Cars {
		if c.Plate == plate {
			return c, true
		}
	}
	return core.CarSummary{}, false
}

// FindDriver returns the summary of one driver. Names compare
// case-insensitively.
func FindDriver(s core.Summary, name string) (core.DriverSummary, bool) {
	name = strings.TrimSpace(name)
	for _, d := range s.Drivers {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return core.DriverSummary{}, false
}

func limit(n, size int) int {
	if n <= 0 {
		n = DefaultTopN
	}
	if n > size {
		return size
	}
	return n
}
