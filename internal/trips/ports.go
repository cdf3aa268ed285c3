// Package trips defines the per-user trip record store.
package trips

import (
	"context"
	"errors"

	"tripstats/internal/core"
)

// ErrDuplicateFile is returned by Append when the user already has records
// from one of the source files. Callers report it as "already processed".
var ErrDuplicateFile = errors.New("source file already processed")

// ErrInvalidUser rejects non-positive user identifiers.
var ErrInvalidUser = errors.New("invalid user id")

// Ports for the record store backends.
type (
	// Store holds each user's trip records in insertion order.
	Store interface {
		// Append adds records for a user and returns how many were stored.
		// Records sharing a source file with an earlier Append fail with
		// ErrDuplicateFile and nothing is stored.
		Append(ctx context.Context, userID int64, records []core.TripRecord) (int, error)
		// List returns the user's records in insertion order.
		List(ctx context.Context, userID int64) ([]core.TripRecord, error)
		// DistinctFiles returns the user's source files in first-ingest order.
		DistinctFiles(ctx context.Context, userID int64) ([]string, error)
		// Clear removes all of the user's records and returns how many were removed.
		Clear(ctx context.Context, userID int64) (int, error)
	}

	// Pinger is implemented by stores backed by a remote database.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Files returns the distinct source files of records in first-occurrence order.
func Files(records []core.TripRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.SourceFile]; ok {
			continue
		}
		seen[r.SourceFile] = struct{}{}
		out = append(out, r.SourceFile)
	}
	return out
}

// CheckUser validates a user identifier.
func CheckUser(userID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	return nil
}
