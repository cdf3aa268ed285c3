package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"tripstats/internal/core"
	"tripstats/internal/trips"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ trips.Store  = (*SQLiteRepository)(nil)
	_ trips.Pinger = (*SQLiteRepository)(nil)
)

// DSN adds the pragmas the schema relies on to a database path.
func DSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return "file:" + dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY inside transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append implements trips.Store. The filename check and the inserts share
// one transaction; identical trip tuples are coalesced by the unique key.
func (r *SQLiteRepository) Append(ctx context.Context, userID int64, records []core.TripRecord) (int, error) {
	if err := trips.CheckUser(userID); err != nil {
		return 0, err
	}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	for _, f := range trips.Files(records) {
		exists, err := q.FileExists(ctx, userID, f)
		if err != nil {
			return 0, fmt.Errorf("check file %s: %w", f, err)
		}
		if exists {
			return 0, fmt.Errorf("%w: %s", trips.ErrDuplicateFile, f)
		}
	}

	if err := q.EnsureUser(ctx, userID); err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}

	carIDs := make(map[string]int64)
	driverIDs := make(map[string]int64)
	var inserted int64
	for _, rec := range records {
		carID, ok := carIDs[rec.CarPlate]
		if !ok {
			if carID, err = q.UpsertCar(ctx, rec.CarPlate); err != nil {
				return 0, fmt.Errorf("upsert car %s: %w", rec.CarPlate, err)
			}
			carIDs[rec.CarPlate] = carID
		}
		driverID, ok := driverIDs[rec.DriverName]
		if !ok {
			if driverID, err = q.UpsertDriver(ctx, rec.DriverName); err != nil {
				return 0, fmt.Errorf("upsert driver %s: %w", rec.DriverName, err)
			}
			driverIDs[rec.DriverName] = driverID
		}

		n, err := q.InsertTrip(ctx, InsertTripParams{
			UserID:     userID,
			CarID:      carID,
			DriverID:   driverID,
			SourceFile: rec.SourceFile,
			TripDate:   rec.TripDate,
			Route:      rec.Route,
			Amount:     rec.Amount.String(),
		})
		if err != nil {
			return 0, fmt.Errorf("insert trip: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Trips saved to SQLite",
		"user_id", userID,
		"records", len(records),
		"inserted", inserted)

	return int(inserted), nil
}

// List implements trips.Store.
func (r *SQLiteRepository) List(ctx context.Context, userID int64) ([]core.TripRecord, error) {
	rows, err := r.queries.ListTrips(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}

	out := make([]core.TripRecord, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("trip %d: parse amount %q: %w", row.TripID, row.Amount, err)
		}
		out = append(out, core.TripRecord{
			SourceFile: row.SourceFile,
			TripDate:   row.TripDate,
			Route:      row.Route,
			Amount:     amount,
			CarPlate:   row.Plate,
			DriverName: row.DriverName,
		})
	}
	return out, nil
}

// DistinctFiles implements trips.Store.
func (r *SQLiteRepository) DistinctFiles(ctx context.Context, userID int64) ([]string, error) {
	files, err := r.queries.DistinctFiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("distinct files: %w", err)
	}
	return files, nil
}

// Clear implements trips.Store. Trips go with their user row via ON DELETE CASCADE.
func (r *SQLiteRepository) Clear(ctx context.Context, userID int64) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	n, err := q.CountTrips(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count trips: %w", err)
	}
	if err := q.DeleteUser(ctx, userID); err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Trips cleared", "user_id", userID, "removed", n)
	return int(n), nil
}
