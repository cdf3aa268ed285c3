package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Trip is one row of the trips table joined with its car and driver.
type Trip struct {
	TripID     int64
	SourceFile string
	TripDate   string
	Route      string
	Amount     string
	Plate      string
	DriverName string
}

const ensureUser = `INSERT INTO users (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`

func (q *Queries) EnsureUser(ctx context.Context, userID int64) error {
	_, err := q.db.ExecContext(ctx, ensureUser, userID)
	return err
}

const upsertCar = `INSERT INTO cars (plate) VALUES (?)
ON CONFLICT (plate) DO UPDATE SET plate = excluded.plate
RETURNING car_id`

func (q *Queries) UpsertCar(ctx context.Context, plate string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, upsertCar, plate).Scan(&id)
	return id, err
}

const upsertDriver = `INSERT INTO drivers (name) VALUES (?)
ON CONFLICT (name) DO UPDATE SET name = excluded.name
RETURNING driver_id`

func (q *Queries) UpsertDriver(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, upsertDriver, name).Scan(&id)
	return id, err
}

const fileExists = `SELECT EXISTS (SELECT 1 FROM trips WHERE user_id = ? AND source_file = ?)`

func (q *Queries) FileExists(ctx context.Context, userID int64, sourceFile string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, fileExists, userID, sourceFile).Scan(&exists)
	return exists, err
}

const insertTrip = `INSERT INTO trips (user_id, car_id, driver_id, source_file, trip_date, route, amount)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, source_file, trip_date, route, amount, car_id, driver_id) DO NOTHING`

type InsertTripParams struct {
	UserID     int64
	CarID      int64
	DriverID   int64
	SourceFile string
	TripDate   string
	Route      string
	Amount     string
}

// InsertTrip returns the number of inserted rows: 0 when the tuple already exists.
func (q *Queries) InsertTrip(ctx context.Context, arg InsertTripParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertTrip,
		arg.UserID,
		arg.CarID,
		arg.DriverID,
		arg.SourceFile,
		arg.TripDate,
		arg.Route,
		arg.Amount,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTrips = `SELECT t.trip_id, t.source_file, t.trip_date, t.route, t.amount, c.plate, d.name
FROM trips t
JOIN cars c ON c.car_id = t.car_id
JOIN drivers d ON d.driver_id = t.driver_id
WHERE t.user_id = ?
ORDER BY t.trip_id`

func (q *Queries) ListTrips(ctx context.Context, userID int64) ([]Trip, error) {
	rows, err := q.db.QueryContext(ctx, listTrips, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Trip
	for rows.Next() {
		var i Trip
		if err := rows.Scan(
			&i.TripID,
			&i.SourceFile,
			&i.TripDate,
			&i.Route,
			&i.Amount,
			&i.Plate,
			&i.DriverName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const distinctFiles = `SELECT source_file FROM trips
WHERE user_id = ?
GROUP BY source_file
ORDER BY MIN(trip_id)`

func (q *Queries) DistinctFiles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, distinctFiles, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countTrips = `SELECT COUNT(*) FROM trips WHERE user_id = ?`

func (q *Queries) CountTrips(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTrips, userID).Scan(&n)
	return n, err
}

const deleteUser = `DELETE FROM users WHERE user_id = ?`

func (q *Queries) DeleteUser(ctx context.Context, userID int64) error {
	_, err := q.db.ExecContext(ctx, deleteUser, userID)
	return err
}
