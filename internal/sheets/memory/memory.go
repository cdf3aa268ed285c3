package memory

import (
	"context"
	"sync"

	"tripstats/internal/core"
	"tripstats/internal/sheets"
	"tripstats/internal/trips"
)

// Store keeps the latest report grid of each user in memory. It stands in
// for Google Sheets when no spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	reports map[int64][][]any
	writes  int
}

var _ sheets.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{reports: make(map[int64][][]any)}
}

// WriteReport stores the rendered report rows.
func (s *Store) WriteReport(_ context.Context, userID int64, summary core.Summary) error {
	if err := trips.CheckUser(userID); err != nil {
		return err
	}
	rows := sheets.ReportRows(summary)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[userID] = rows
	s.writes++
	return nil
}

// ClearReport drops the user's report.
func (s *Store) ClearReport(_ context.Context, userID int64) error {
	if err := trips.CheckUser(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, userID)
	s.writes++
	return nil
}

// Report returns a copy of the user's rows and whether a report exists.
func (s *Store) Report(userID int64) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.reports[userID]
	if !ok {
		return nil, false
	}
	return append([][]any(nil), rows...), true
}

// Writes counts WriteReport and ClearReport calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
