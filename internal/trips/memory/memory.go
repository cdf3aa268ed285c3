package memory

import (
	"context"
	"fmt"
	"sync"

	"tripstats/internal/core"
	"tripstats/internal/trips"
)

// Store is the ephemeral trips.Store. Contents are lost on restart.
type Store struct {
	mu    sync.Mutex
	users map[int64][]core.TripRecord
}

var _ trips.Store = (*Store)(nil)

func New() *Store {
	return &Store{users: make(map[int64][]core.TripRecord)}
}

// Append validates every record, then checks the filenames and appends
// under one lock so concurrent uploads of the same file cannot both pass.
func (s *Store) Append(_ context.Context, userID int64, records []core.TripRecord) (int, error) {
	if err := trips.CheckUser(userID); err != nil {
		return 0, err
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.users[userID]
	seen := make(map[string]struct{})
	for _, r := range existing {
		seen[r.SourceFile] = struct{}{}
	}
	for _, f := range trips.Files(records) {
		if _, ok := seen[f]; ok {
			return 0, fmt.Errorf("%w: %s", trips.ErrDuplicateFile, f)
		}
	}
	s.users[userID] = append(existing, records...)
	return len(records), nil
}

// List returns a copy of the user's records.
func (s *Store) List(_ context.Context, userID int64) ([]core.TripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.TripRecord(nil), s.users[userID]...), nil
}

func (s *Store) DistinctFiles(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return trips.Files(s.users[userID]), nil
}

func (s *Store) Clear(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.users[userID])
	delete(s.users, userID)
	return n, nil
}
