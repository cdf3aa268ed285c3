// Package postgres is the PostgreSQL trips.Store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tripstats/internal/core"
	"tripstats/internal/trips"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ trips.Store  = (*Store)(nil)
	_ trips.Pinger = (*Store)(nil)
)

// Open connects to databaseURL, applies migrations and returns the store.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded schema through the pgx/v5 migrate driver.
func RunMigrations(databaseURL string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, MigrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// MigrateURL rewrites a postgres:// URL to the scheme of the pgx/v5 migrate driver.
func MigrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append implements trips.Store. A transaction-scoped advisory lock on the
// user serialises concurrent appends, so the filename check cannot race.
func (s *Store) Append(ctx context.Context, userID int64, records []core.TripRecord) (int, error) {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return 0, fmt.Errorf("lock user: %w", err)
	}

	for _, f := range trips.Files(records) {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM trips WHERE user_id = $1 AND source_file = $2)`,
			userID, f).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check file %s: %w", f, err)
		}
		if exists {
			return 0, fmt.Errorf("%w: %s", trips.ErrDuplicateFile, f)
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}

	carIDs, err := upsertNames(ctx, tx, "cars", "car_id", "plate", distinct(records, func(r core.TripRecord) string { return r.CarPlate }))
	if err != nil {
		return 0, err
	}
	driverIDs, err := upsertNames(ctx, tx, "drivers", "driver_id", "name", distinct(records, func(r core.TripRecord) string { return r.DriverName }))
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`INSERT INTO trips (user_id, car_id, driver_id, source_file, trip_date, route, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)
ON CONFLICT ON CONSTRAINT trips_natural_key DO NOTHING`,
			userID, carIDs[rec.CarPlate], driverIDs[rec.DriverName],
			rec.SourceFile, rec.TripDate, rec.Route, rec.Amount.String())
	}
	br := tx.SendBatch(ctx, batch)
	var inserted int64
	for range records {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert trip: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Trips saved to PostgreSQL",
		"user_id", userID,
		"records", len(records),
		"inserted", inserted)
	return int(inserted), nil
}

// upsertNames inserts the values into a lookup table and returns their ids.
func upsertNames(ctx context.Context, tx pgx.Tx, table, idCol, nameCol string, values []string) (map[string]int64, error) {
	q := fmt.Sprintf(`INSERT INTO %[1]s (%[3]s) SELECT unnest($1::text[])
ON CONFLICT (%[3]s) DO UPDATE SET %[3]s = excluded.%[3]s
RETURNING %[3]s, %[2]s`, table, idCol, nameCol)

	rows, err := tx.Query(ctx, q, values)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	defer rows.Close()

	ids := make(map[string]int64, len(values))
	for rows.Next() {
		var (
			name string
			id   int64
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		ids[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	return ids, nil
}

func distinct(records []core.TripRecord, field func(core.TripRecord) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v := field(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// List implements trips.Store.
func (s *Store) List(ctx context.Context, userID int64) ([]core.TripRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.source_file, t.trip_date, t.route, t.amount::text, c.plate, d.name
		FROM trips t
		JOIN cars c ON c.car_id = t.car_id
		JOIN drivers d ON d.driver_id = t.driver_id
		WHERE t.user_id = $1
		ORDER BY t.trip_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var out []core.TripRecord
	for rows.Next() {
		var (
			r      core.TripRecord
			amount string
		)
		if err := rows.Scan(&r.SourceFile, &r.TripDate, &r.Route, &amount, &r.CarPlate, &r.DriverName); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return out, nil
}

// DistinctFiles implements trips.Store.
func (s *Store) DistinctFiles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_file FROM trips
		WHERE user_id = $1
		GROUP BY source_file
		ORDER BY MIN(trip_id)`, userID)
	if err != nil {
		return nil, fmt.Errorf("distinct files: %w", err)
	}
	files, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("distinct files: %w", err)
	}
	return files, nil
}

// Clear implements trips.Store.
func (s *Store) Clear(ctx context.Context, userID int64) (int, error) {
	var n int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM trips WHERE user_id = $1`, userID).Scan(&n); err != nil {
			return fmt.Errorf("count trips: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Trips cleared", "user_id", userID, "removed", n)
	return n, nil
}
