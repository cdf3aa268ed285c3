package core

import "github.com/shopspring/decimal"

// CarSummary aggregates the trips of one car plate.
type CarSummary struct {
	Plate       string          `json:"plate"`
	TripCount   int             `json:"trip_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Drivers     []string        `json:"drivers"`
	Files       []string        `json:"files"`
}

// DriverSummary aggregates the trips of one driver. Records with an
// unknown driver never produce a DriverSummary.
type DriverSummary struct {
	Name        string          `json:"name"`
	TripCount   int             `json:"trip_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Cars        []string        `json:"cars"`
	Files       []string        `json:"files"`
}

// FileSummary aggregates the trips extracted from one source file.
type FileSummary struct {
	File        string          `json:"file"`
	TripCount   int             `json:"trip_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Overview holds the headline counters of a Summary.
type Overview struct {
	TripCount   int             `json:"trip_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	FileCount   int             `json:"file_count"`
	CarCount    int             `json:"car_count"`
	DriverCount int             `json:"driver_count"`
}

// Summary is the full derived view over one record collection.
// Cars, Drivers and Files are in first-occurrence order of the input.
type Summary struct {
	Overview
	Cars    []CarSummary    `json:"cars"`
	Drivers []DriverSummary `json:"drivers"`
	Files   []FileSummary   `json:"files"`
}

// Ranking is a top-N view over cars and drivers.
type Ranking struct {
	Cars    []CarSummary    `json:"cars"`
	Drivers []DriverSummary `json:"drivers"`
}
