package extract

import (
	"errors"
	"regexp"
	"strings"

	"tripstats/internal/core"
)

// Row-level outcomes. They are counted, never reported individually.
var (
	ErrInvalidAmount = errors.New("row amount is not a positive number")
	ErrUnknownPlate  = errors.New("row has no car plate")
)

// FieldExtractor turns one raw (description, amount) pair into a trip
// record, or returns a row-level error when the row must be dropped.
type FieldExtractor interface {
	Extract(sourceFile, description, rawAmount string) (core.TripRecord, error)
}

// InvoiceFields extracts trip fields from transport invoice descriptions
// with ordered rule chains.
type InvoiceFields struct {
	DateRules   RuleChain
	PlateRules  RuleChain
	DriverRules RuleChain
}

var _ FieldExtractor = (*InvoiceFields)(nil)

// Rules are shared by every InvoiceFields; regexp.Regexp is safe for
// concurrent use.
var (
	tripDateRules = RuleChain{
		{Name: "from-date", Pattern: regexp.MustCompile(`(?:от|from)\s+(\d{2}\.\d{2}\.\d{2})`)},
	}
	// The first three-digit run is taken as the plate. Unrelated numbers
	// earlier in the text win; there is no corpus to justify anything stricter.
	carPlateRules = RuleChain{
		{Name: "three-digits", Pattern: regexp.MustCompile(`(\d{3})`)},
	}
	driverNameRules = RuleChain{
		{Name: "surname-initials", Pattern: regexp.MustCompile(`,\s*(\p{Lu}\p{Ll}+)\s+\p{Lu}\.\s?\p{Lu}\.`)},
		{Name: "surname", Pattern: regexp.MustCompile(`,\s*(\p{Lu}\p{Ll}+)`)},
	}
)

// NewInvoiceFields returns the field rules of the trip invoice layout.
func NewInvoiceFields() *InvoiceFields {
	return &InvoiceFields{
		DateRules:   tripDateRules,
		PlateRules:  carPlateRules,
		DriverRules: driverNameRules,
	}
}

// Extract implements FieldExtractor. The amount is checked first so that
// annotation rows are dropped before any pattern work.
func (f *InvoiceFields) Extract(sourceFile, description, rawAmount string) (core.TripRecord, error) {
	amount, err := core.ParseAmount(rawAmount)
	if err != nil {
		return core.TripRecord{}, ErrInvalidAmount
	}

	plate, ok := f.Plate(description)
	if !ok {
		return core.TripRecord{}, ErrUnknownPlate
	}

	return core.TripRecord{
		SourceFile: sourceFile,
		TripDate:   f.Date(description),
		Route:      Route(description),
		Amount:     amount,
		CarPlate:   plate,
		DriverName: f.Driver(description),
	}, nil
}

// Route is the text before the first comma, or "" without a comma.
func Route(description string) string {
	route, _, found := strings.Cut(description, ",")
	if !found {
		return ""
	}
	return strings.TrimSpace(route)
}

// Date returns the dd.mm.yy token following "from", or core.UnknownDate.
func (f *InvoiceFields) Date(description string) string {
	if v, _, ok := f.DateRules.First(description); ok {
		return v
	}
	return core.UnknownDate
}

// Plate returns the first plate candidate.
func (f *InvoiceFields) Plate(description string) (string, bool) {
	v, _, ok := f.PlateRules.First(description)
	return v, ok
}

// Driver returns the surname from the first matching driver rule, or
// core.UnknownDriver.
func (f *InvoiceFields) Driver(description string) string {
	if v, _, ok := f.DriverRules.First(description); ok {
		return v
	}
	return core.UnknownDriver
}
