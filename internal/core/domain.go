// Package core holds the trip record, its summaries and invoice amount parsing.
package core

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel values for fields that could not be determined from the source text.
const (
	UnknownDate   = "unknown-date"
	UnknownPlate  = "unknown-plate"
	UnknownDriver = "unknown-driver"
)

// TripDateLayout is the dd.mm.yy layout used by invoice descriptions.
const TripDateLayout = "02.01.06"

type (
	// TripRecord is a single trip recovered from one invoice row.
	TripRecord struct {
		SourceFile string          `json:"source_file"`
		TripDate   string          `json:"trip_date"`
		Route      string          `json:"route"`
		Amount     decimal.Decimal `json:"amount"`
		CarPlate   string          `json:"car_plate"`
		DriverName string          `json:"driver_name"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrUnknownPlate    = errors.New("unknown car plate")
	ErrEmptySourceFile = errors.New("empty source file")
	ErrMalformedPlate  = errors.New("car plate is not a three digit token")
	ErrEmptyDriverName = errors.New("empty driver name")
	ErrEmptyTripDate   = errors.New("empty trip date")
)

var plateToken = regexp.MustCompile(`^\d{3}$`)

// Validate reports whether the record may be kept in the working set.
// Date and driver may be unknown; plate and amount may not.
func (t TripRecord) Validate() error {
	if strings.TrimSpace(t.SourceFile) == "" {
		return ErrEmptySourceFile
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if t.CarPlate == UnknownPlate || t.CarPlate == "" {
		return ErrUnknownPlate
	}
	if !plateToken.MatchString(t.CarPlate) {
		return ErrMalformedPlate
	}
	if t.DriverName == "" {
		return ErrEmptyDriverName
	}
	if t.TripDate == "" {
		return ErrEmptyTripDate
	}
	return nil
}

// HasDriver is false for records whose driver could not be extracted.
func (t TripRecord) HasDriver() bool {
	return t.DriverName != UnknownDriver && t.DriverName != ""
}

// Date parses TripDate. ok is false for the sentinel or an impossible calendar date.
func (t TripRecord) Date() (time.Time, bool) {
	if t.TripDate == UnknownDate {
		return time.Time{}, false
	}
	d, err := time.Parse(TripDateLayout, t.TripDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Key is the natural identity of a trip inside one user's collection.
// Relational stores enforce uniqueness over the same tuple.
func (t TripRecord) Key() string {
	return strings.Join([]string{
		t.SourceFile,
		t.TripDate,
		t.Route,
		t.Amount.String(),
		t.CarPlate,
		t.DriverName,
	}, "\x1f")
}
