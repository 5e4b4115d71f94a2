// Package postgres implements the store driver on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	// Postgres driver.
	_ "github.com/lib/pq"

	"github.com/safartrip/safarbot/internal/profile"
	"github.com/safartrip/safarbot/store"
)

const (
	maxOpenConns   = 10
	maxIdleConns   = 2
	commandTimeout = 30 * time.Second
)

// DB implements store.Driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a connection pool against the profile's DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pgDB.SetMaxOpenConns(maxOpenConns)
	pgDB.SetMaxIdleConns(maxIdleConns)
	pgDB.SetConnMaxLifetime(time.Hour)

	driver := &DB{db: pgDB, profile: profile}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := pgDB.PingContext(ctx); err != nil {
		_ = pgDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return driver, nil
}

func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()
	if err := d.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// opCtx bounds every statement with the command timeout.
func (d *DB) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, commandTimeout)
}

// unavailable types a driver failure so callers can match on
// store.ErrUnavailable without losing the underlying error.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}

// placeholder renders the n-th positional parameter.
func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// scanErr maps sql.ErrNoRows to store.ErrNotFound.
func scanErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return unavailable(op, err)
}
