package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/jpillora/backoff"
	"github.com/manishdashsharma/gitview/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverSQLite is the default embedded driver
	DriverSQLite = "sqlite3"
	// DriverPostgres is the pgx stdlib driver
	DriverPostgres = "pgx"
)

// DB represents the database connection
type DB struct {
	*sqlx.DB
}

// New creates a new database connection
func New(driver, dsn string) (*DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite serializes writers anyway; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Open connects with exponential backoff, giving up after attempts tries
func Open(ctx context.Context, driver, dsn string, attempts int, logger *log.Logger) (*DB, error) {
	var db *DB
	err := WithRetry(ctx, attempts, logger, func() error {
		var err error
		db, err = New(driver, dsn)
		return err
	})
	return db, err
}

// WithRetry runs connect until it succeeds, attempts run out, or ctx is done
func WithRetry(ctx context.Context, attempts int, logger *log.Logger, connect func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	boff := backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
	}

	for {
		err := connect()
		if err == nil {
			return nil
		}
		if int(boff.Attempt())+1 >= attempts {
			return err
		}

		dur := boff.Duration()
		logger.Warn("store connection failed", "err", err, "attempt", boff.Attempt(), "retrying after", dur)

		timer := time.NewTimer(dur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			username TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			cached_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS visits (
			date TEXT PRIMARY KEY,
			count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profile_views (
			username TEXT NOT NULL,
			date TEXT NOT NULL,
			count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (username, date)
		)`,
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// GetProfile gets the cached record for a username, or nil if there is none
func (db *DB) GetProfile(ctx context.Context, username string) (*models.AnalyticsRecord, error) {
	var row struct {
		Data     string `db:"data"`
		CachedAt int64  `db:"cached_at"`
	}

	query := db.Rebind(`SELECT data, cached_at FROM profiles WHERE username = ?`)
	if err := db.GetContext(ctx, &row, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var rec models.AnalyticsRecord
	if err := json.Unmarshal([]byte(row.Data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cached profile: %w", err)
	}

	return &rec, nil
}

// SaveProfile stores a record unless a row for the username already exists
// that was cached after staleBefore. It reports whether this write won.
// A zero staleBefore makes the first write final.
func (db *DB) SaveProfile(ctx context.Context, username string, rec *models.AnalyticsRecord, staleBefore time.Time) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode profile: %w", err)
	}

	query := db.Rebind(`
	INSERT INTO profiles (username, data, cached_at)
	VALUES (?, ?, ?)
	ON CONFLICT(username) DO UPDATE SET
		data = excluded.data,
		cached_at = excluded.cached_at
	WHERE profiles.cached_at <= ?
	`)

	res, err := db.ExecContext(ctx, query, username, string(data), rec.CachedAt.UnixMilli(), staleBefore.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to save profile: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save profile: %w", err)
	}
	return n > 0, nil
}

// IncrementCounter atomically adds one to the (username, date) counter and
// returns the new count. An empty username addresses the global visit counter.
func (db *DB) IncrementCounter(ctx context.Context, username, date string, at time.Time) (int64, error) {
	var query string
	var args []any
	if username == "" {
		query = `
		INSERT INTO visits (date, count, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			count = visits.count + 1,
			updated_at = excluded.updated_at
		RETURNING count
		`
		args = []any{date, at, at}
	} else {
		query = `
		INSERT INTO profile_views (username, date, count, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(username, date) DO UPDATE SET
			count = profile_views.count + 1,
			updated_at = excluded.updated_at
		RETURNING count
		`
		args = []any{username, date, at, at}
	}

	var count int64
	if err := db.GetContext(ctx, &count, db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return count, nil
}

// CounterRange gets the counter rows with from <= date <= to, oldest first
func (db *DB) CounterRange(ctx context.Context, username, from, to string) ([]models.DayCounter, error) {
	var query string
	var args []any
	if username == "" {
		query = `SELECT date, count, created_at, updated_at FROM visits WHERE date >= ? AND date <= ? ORDER BY date`
		args = []any{from, to}
	} else {
		query = `SELECT username, date, count, created_at, updated_at FROM profile_views
		WHERE username = ? AND date >= ? AND date <= ? ORDER BY date`
		args = []any{username, from, to}
	}

	var rows []models.DayCounter
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	return rows, nil
}

// CounterTotal sums every day of a counter
func (db *DB) CounterTotal(ctx context.Context, username string) (int64, error) {
	var total int64
	var err error
	if username == "" {
		err = db.GetContext(ctx, &total, `SELECT COALESCE(SUM(count), 0) FROM visits`)
	} else {
		err = db.GetContext(ctx, &total, db.Rebind(`SELECT COALESCE(SUM(count), 0) FROM profile_views WHERE username = ?`), username)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to sum counters: %w", err)
	}
	return total, nil
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
