package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

var (
	// ErrStoreConnection returned when the database can't be opened, created or initialized
	ErrStoreConnection = errors.New("store connection failed")
	// ErrDataIntegrity returned when more than one route matches a (start, destination) pair
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrInvalidRoute returned for empty start or destination
	ErrInvalidRoute = errors.New("invalid route")
)

const initTimeout = 5 * time.Second

// Route is a deduplicated (start, destination) pair
type Route struct {
	ID          int64   `db:"track_id"`
	Start       string  `db:"start"`
	Destination string  `db:"destination"`
	Duration    float64 `db:"duration"` // traffic-free duration in seconds seen on the first request
}

// Sample is a single timestamped traffic-aware duration of a route
type Sample struct {
	RouteID           int64    `db:"track_id"`
	Time              float64  `db:"time"`                // seconds since epoch, UTC
	DurationInTraffic *float64 `db:"duration_in_traffic"` // nil if upstream didn't report it
}

// At returns sample time as time.Time
func (s Sample) At() time.Time {
	sec := int64(s.Time)
	return time.Unix(sec, int64((s.Time-float64(sec))*float64(time.Second))).UTC()
}

// Measurement is everything a single directions request produced, saved by Save
type Measurement struct {
	Start             string
	Destination       string
	Duration          float64
	DurationInTraffic *float64
	Time              time.Time
}

// SQLiteStore implements route and sample persistence with SQLite
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database file and makes sure the schema exists
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrStoreConnection, dbPath, err)
	}
	db.SetMaxOpenConns(1) // single writer

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrStoreConnection, dbPath, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("[DEBUG] sqlite store %s ready", dbPath)
	return s, nil
}

// Initialize creates the database schema. Safe to call on every run.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS route (
			track_id INTEGER PRIMARY KEY,
			start TEXT,
			destination TEXT,
			duration REAL
		)`,
		`CREATE TABLE IF NOT EXISTS track_duration (
			track_id INTEGER,
			time REAL,
			duration_in_traffic REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_track_duration_track_id ON track_duration(track_id)`,
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for i, query := range queries {
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("failed to execute schema statement #%d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreConnection, err)
	}
	return nil
}

// Resolve returns the id of the route matching start and destination case-insensitively.
// Unknown pair gets a new route with id max+1 (0 for the first route) and fallbackDuration as its duration.
// More than one matching route is reported as ErrDataIntegrity and nothing is written.
func (s *SQLiteStore) Resolve(ctx context.Context, start, destination string, fallbackDuration float64) (id int64, err error) {
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		id, err = s.resolve(ctx, tx, start, destination, fallbackDuration)
		return err
	})
	return id, err
}

// Record appends a duration sample for the route. Repeated calls make repeated rows.
func (s *SQLiteStore) Record(ctx context.Context, routeID int64, ts time.Time, durationInTraffic *float64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return s.record(ctx, tx, routeID, ts, durationInTraffic)
	})
}

// Save resolves and records all measurements in a single transaction and returns route ids in the same order.
// Any failure rolls back everything, including routes created for earlier measurements.
func (s *SQLiteStore) Save(ctx context.Context, ms ...Measurement) ([]int64, error) {
	ids := make([]int64, 0, len(ms))
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, m := range ms {
			id, err := s.resolve(ctx, tx, m.Start, m.Destination, m.Duration)
			if err != nil {
				return err
			}
			if err := s.record(ctx, tx, id, m.Time, m.DurationInTraffic); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Routes returns all known routes ordered by id
func (s *SQLiteStore) Routes(ctx context.Context) ([]Route, error) {
	routes := []Route{}
	if err := s.db.SelectContext(ctx, &routes,
		`SELECT track_id, start, destination, duration FROM route ORDER BY track_id`); err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	return routes, nil
}

// Samples returns all samples of the route in time order
func (s *SQLiteStore) Samples(ctx context.Context, routeID int64) ([]Sample, error) {
	samples := []Sample{}
	if err := s.db.SelectContext(ctx, &samples,
		`SELECT track_id, time, duration_in_traffic FROM track_duration WHERE track_id = ? ORDER BY time, rowid`,
		routeID); err != nil {
		return nil, fmt.Errorf("failed to query samples for route %d: %w", routeID, err)
	}
	return samples, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) resolve(ctx context.Context, tx *sqlx.Tx, start, destination string, fallbackDuration float64) (int64, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(destination) == "" {
		return 0, fmt.Errorf("%w: start %q, destination %q", ErrInvalidRoute, start, destination)
	}

	ids := []int64{}
	err := tx.SelectContext(ctx, &ids,
		`SELECT track_id FROM route WHERE start = ? COLLATE NOCASE AND destination = ? COLLATE NOCASE`,
		start, destination)
	if err != nil {
		return 0, fmt.Errorf("failed to query route %q -> %q: %w", start, destination, err)
	}

	if len(ids) > 1 {
		return 0, fmt.Errorf("%w: %d routes for %q -> %q", ErrDataIntegrity, len(ids), start, destination)
	}
	if len(ids) == 1 {
		return ids[0], nil
	}

	// id allocated and row inserted by one statement, the transaction holds the write lock
	res, err := tx.ExecContext(ctx, `
		INSERT INTO route (track_id, start, destination, duration)
		SELECT COALESCE(MAX(track_id) + 1, 0), ?, ?, ? FROM route`,
		start, destination, fallbackDuration)
	if err != nil {
		return 0, fmt.Errorf("failed to add route %q -> %q: %w", start, destination, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get id of route %q -> %q: %w", start, destination, err)
	}
	log.Printf("[INFO] unknown route, added %q -> %q as %d", start, destination, id)
	return id, nil
}

func (s *SQLiteStore) record(ctx context.Context, tx *sqlx.Tx, routeID int64, ts time.Time, durationInTraffic *float64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO track_duration (track_id, time, duration_in_traffic) VALUES (?, ?, ?)`,
		routeID, epochSeconds(ts), durationInTraffic)
	if err != nil {
		return fmt.Errorf("failed to record sample for route %d: %w", routeID, err)
	}
	return nil
}

// inTx runs fn in a transaction, committed only if fn succeeded
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func epochSeconds(ts time.Time) float64 {
	return float64(ts.Unix()) + float64(ts.Nanosecond())/float64(time.Second)
}
