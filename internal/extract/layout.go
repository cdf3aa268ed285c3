// Package extract recovers trip records from invoice worksheets.
//
// Extraction runs in three stages: the header locator finds the description
// and amount columns by marker text, the row extractor walks the data rows
// below the header, and a FieldExtractor turns each (description, amount)
// pair into a core.TripRecord. Everything that depends on the wording of a
// particular invoice family lives in a Layout value, so another family can
// be supported by adding a Layout instead of touching the control flow.
package extract

import "regexp"

// Layout describes one invoice layout family.
type Layout struct {
	Name string

	// DescriptionMarkers locate the goods/services description column.
	DescriptionMarkers []string
	// AmountMarkers locate the amount column unless the cell also
	// contains one of AmountExcludeMarkers.
	AmountMarkers        []string
	AmountExcludeMarkers []string

	// StopWords mark summary rows (matched case-insensitively).
	StopWords []string

	// MaxEmptyRun consecutive empty description cells end the table.
	MaxEmptyRun int
	// MaxRows bounds the scan below the header row.
	MaxRows int

	Fields FieldExtractor
}

const (
	defaultMaxEmptyRun = 5
	defaultMaxRows     = 1000
)

// TripInvoiceLayout returns the transport invoice layout: a goods/services
// table whose description reads like "Route, from 06.09.25, car 123, Ivanov I.I.".
// Both the Russian originals of the markers and their English renderings
// are recognised.
func TripInvoiceLayout() Layout {
	return Layout{
		Name:                 "trip-invoice",
		DescriptionMarkers:   []string{"Товары (работы, услуги)", "goods/services description"},
		AmountMarkers:        []string{"Сумма", "amount"},
		AmountExcludeMarkers: []string{"Сумма с НДС", "amount including tax"},
		StopWords:            []string{"итого", "всего", "итог", "сумма", "grand total", "subtotal", "total", "sum"},
		MaxEmptyRun:          defaultMaxEmptyRun,
		MaxRows:              defaultMaxRows,
		Fields:               NewInvoiceFields(),
	}
}

func (l Layout) maxEmptyRun() int {
	if l.MaxEmptyRun > 0 {
		return l.MaxEmptyRun
	}
	return defaultMaxEmptyRun
}

func (l Layout) maxRows() int {
	if l.MaxRows > 0 {
		return l.MaxRows
	}
	return defaultMaxRows
}

func (l Layout) fields() FieldExtractor {
	if l.Fields != nil {
		return l.Fields
	}
	return NewInvoiceFields()
}

// Rule is one named pattern in a first-match-wins chain. The first
// capture group is the extracted value.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Match returns the first capture group of the rule's pattern.
func (r Rule) Match(s string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// RuleChain evaluates rules in order and returns the first match.
type RuleChain []Rule

// First returns the value and rule name of the first matching rule.
func (c RuleChain) First(s string) (value, rule string, ok bool) {
	for _, r := range c {
		if v, ok := r.Match(s); ok {
			return v, r.Name, true
		}
	}
	return "", "", false
}
