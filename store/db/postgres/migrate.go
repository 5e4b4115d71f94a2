package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Schema bootstrap. Safe to run any number of times against any prior state:
// every step is guarded by an existence check and no step errors on
// pre-existing objects.

const createUsers = `
CREATE TABLE IF NOT EXISTS users (
	chat_id BIGINT PRIMARY KEY,
	phone TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createListings = `
CREATE TABLE IF NOT EXISTS listings (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	region TEXT NOT NULL,
	category TEXT NOT NULL,
	subtype TEXT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price_from BIGINT,
	currency TEXT NOT NULL DEFAULT 'UZS',
	phone TEXT NOT NULL DEFAULT '',
	owner_chat_id BIGINT NOT NULL DEFAULT 0,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	address TEXT NOT NULL DEFAULT '',
	photos TEXT[] NOT NULL DEFAULT '{}',
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createBookings = `
CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	listing_id UUID NOT NULL,
	user_chat_id BIGINT NOT NULL,
	owner_chat_id BIGINT NOT NULL DEFAULT 0,
	payload JSONB NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending_partner',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	dispatched_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	partner_message_id BIGINT
)`

// requiredColumns lists columns re-added when missing from an older schema.
var requiredColumns = []struct {
	table, column, ddl string
}{
	{"users", "first_name", `ALTER TABLE users ADD COLUMN first_name TEXT NOT NULL DEFAULT ''`},
	{"users", "last_name", `ALTER TABLE users ADD COLUMN last_name TEXT NOT NULL DEFAULT ''`},
	{"users", "updated_at", `ALTER TABLE users ADD COLUMN updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`},
	{"listings", "subtype", `ALTER TABLE listings ADD COLUMN subtype TEXT`},
	{"listings", "owner_chat_id", `ALTER TABLE listings ADD COLUMN owner_chat_id BIGINT NOT NULL DEFAULT 0`},
	{"listings", "photos", `ALTER TABLE listings ADD COLUMN photos TEXT[] NOT NULL DEFAULT '{}'`},
	{"bookings", "owner_chat_id", `ALTER TABLE bookings ADD COLUMN owner_chat_id BIGINT NOT NULL DEFAULT 0`},
	{"bookings", "dispatched_at", `ALTER TABLE bookings ADD COLUMN dispatched_at TIMESTAMPTZ`},
	{"bookings", "expires_at", `ALTER TABLE bookings ADD COLUMN expires_at TIMESTAMPTZ`},
	{"bookings", "partner_message_id", `ALTER TABLE bookings ADD COLUMN partner_message_id BIGINT`},
}

var requiredIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_listings_region_category_active ON listings (region, category, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings (owner_chat_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_listing_status ON bookings (listing_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_created ON bookings (user_chat_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_expiry ON bookings (expires_at, status) WHERE expires_at IS NOT NULL`,
}

// Migrate bootstraps or repairs the schema.
func (d *DB) Migrate(ctx context.Context) error {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	// gen_random_uuid lives in pgcrypto on older Postgres.
	if _, err := d.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		return unavailable("migrate: pgcrypto", err)
	}

	for _, stmt := range []string{createUsers, createListings, createBookings} {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("migrate: create table", err)
		}
	}

	// Legacy rename must run before the column checks so the checks see the
	// final name.
	if err := d.renameLegacyPartnerID(ctx); err != nil {
		return err
	}

	for _, col := range requiredColumns {
		ok, err := d.columnExists(ctx, col.table, col.column)
		if err != nil {
			return err
		}
		if !ok {
			slog.Info("migrate: adding missing column", "table", col.table, "column", col.column)
			if _, err := d.db.ExecContext(ctx, col.ddl); err != nil {
				return unavailable("migrate: add column", err)
			}
		}
	}

	if err := d.ensureBookingListingFK(ctx); err != nil {
		return err
	}

	if err := d.backfillListingOwner(ctx); err != nil {
		return err
	}

	for _, stmt := range requiredIndexes {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("migrate: create index", err)
		}
	}

	return nil
}

// Reset drops all tables and rebuilds the schema. The gate lives in the
// Store facade.
func (d *DB) Reset(ctx context.Context) error {
	opCtx, cancel := d.opCtx(ctx)
	defer cancel()
	if _, err := d.db.ExecContext(opCtx, `DROP TABLE IF EXISTS bookings, listings, users CASCADE`); err != nil {
		return unavailable("reset: drop tables", err)
	}
	return d.Migrate(ctx)
}

func (d *DB) columnExists(ctx context.Context, table, column string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1 FROM information_schema.columns
		WHERE table_name = $1 AND column_name = $2`, table, column).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, unavailable("migrate: column check", err)
	}
	return true, nil
}

// renameLegacyPartnerID renames bookings.partner_id to listing_id when an
// older deployment still carries the legacy name.
func (d *DB) renameLegacyPartnerID(ctx context.Context) error {
	hasLegacy, err := d.columnExists(ctx, "bookings", "partner_id")
	if err != nil {
		return err
	}
	if !hasLegacy {
		return nil
	}
	hasCurrent, err := d.columnExists(ctx, "bookings", "listing_id")
	if err != nil {
		return err
	}
	if hasCurrent {
		// Both present: the legacy column is dead weight, leave it alone.
		return nil
	}
	slog.Info("migrate: renaming legacy bookings.partner_id to listing_id")
	if _, err := d.db.ExecContext(ctx, `ALTER TABLE bookings RENAME COLUMN partner_id TO listing_id`); err != nil {
		return unavailable("migrate: rename partner_id", err)
	}
	return nil
}

func (d *DB) ensureBookingListingFK(ctx context.Context) error {
	var one int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1 FROM information_schema.table_constraints
		WHERE table_name = 'bookings'
		  AND constraint_name = 'bookings_listing_id_fkey'
		  AND constraint_type = 'FOREIGN KEY'`).Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return unavailable("migrate: fk check", err)
	}
	slog.Info("migrate: adding bookings.listing_id foreign key")
	_, err = d.db.ExecContext(ctx, `
		ALTER TABLE bookings
		ADD CONSTRAINT bookings_listing_id_fkey
		FOREIGN KEY (listing_id) REFERENCES listings (id) ON DELETE CASCADE`)
	if err != nil {
		return unavailable("migrate: add fk", err)
	}
	return nil
}

// backfillListingOwner fills owner_chat_id from the legacy admin-id column
// where a listing still has no owner.
func (d *DB) backfillListingOwner(ctx context.Context) error {
	hasLegacy, err := d.columnExists(ctx, "listings", "telegram_admin_id")
	if err != nil {
		return err
	}
	if !hasLegacy {
		return nil
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE listings SET owner_chat_id = telegram_admin_id
		WHERE owner_chat_id = 0 AND telegram_admin_id IS NOT NULL AND telegram_admin_id <> 0`)
	if err != nil {
		return unavailable("migrate: backfill owner", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info(fmt.Sprintf("migrate: backfilled owner_chat_id on %d listings", n))
	}
	return nil
}
