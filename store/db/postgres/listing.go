package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/safartrip/safarbot/store"
)

const listingColumns = `id, region, category, subtype, title, description, price_from, currency,
	phone, owner_chat_id, latitude, longitude, address, photos, is_active, created_at`

func scanListing(row interface{ Scan(...any) error }) (*store.Listing, error) {
	l := &store.Listing{}
	err := row.Scan(
		&l.ID, &l.Region, &l.Category, &l.Subtype, &l.Title, &l.Description,
		&l.PriceFrom, &l.Currency, &l.Phone, &l.OwnerChatID,
		&l.Latitude, &l.Longitude, &l.Address, pq.Array(&l.Photos), &l.IsActive, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (d *DB) CreateListing(ctx context.Context, create *store.Listing) (*store.Listing, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	stmt := `
		INSERT INTO listings (region, category, subtype, title, description, price_from, currency,
			phone, owner_chat_id, latitude, longitude, address, photos, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + listingColumns

	row := d.db.QueryRowContext(ctx, stmt,
		create.Region, create.Category, create.Subtype, create.Title, create.Description,
		create.PriceFrom, create.Currency, create.Phone, create.OwnerChatID,
		create.Latitude, create.Longitude, create.Address, pq.Array(create.Photos), create.IsActive,
	)
	listing, err := scanListing(row)
	if err != nil {
		return nil, unavailable("create listing", err)
	}
	return listing, nil
}

func (d *DB) GetListing(ctx context.Context, id uuid.UUID) (*store.Listing, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	listing, err := scanListing(row)
	if err != nil {
		return nil, scanErr("get listing", err)
	}
	return listing, nil
}

// GetListingByPrefix resolves the 8-char id prefix carried in callback
// tokens.
func (d *DB) GetListingByPrefix(ctx context.Context, prefix string) (*store.Listing, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	row := d.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id::text LIKE $1 LIMIT 1`,
		prefix+"%")
	listing, err := scanListing(row)
	if err != nil {
		return nil, scanErr("get listing by prefix", err)
	}
	return listing, nil
}

func (d *DB) ListListings(ctx context.Context, find *store.FindListing) ([]*store.Listing, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	where, args := []string{"1 = 1"}, []any{}

	if find.Region != nil {
		where, args = append(where, "region = "+placeholder(len(args)+1)), append(args, *find.Region)
	}
	if find.Category != nil {
		where, args = append(where, "category = "+placeholder(len(args)+1)), append(args, *find.Category)
	}
	if find.Subtype != nil {
		where, args = append(where, "subtype = "+placeholder(len(args)+1)), append(args, *find.Subtype)
	}
	if find.OwnerChatID != nil {
		where, args = append(where, "owner_chat_id = "+placeholder(len(args)+1)), append(args, *find.OwnerChatID)
	}
	if find.ActiveOnly {
		where = append(where, "is_active = true")
	}

	query := `SELECT ` + listingColumns + ` FROM listings WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list listings", err)
	}
	defer rows.Close()

	list := make([]*store.Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, unavailable("scan listing", err)
		}
		list = append(list, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate listings", err)
	}
	return list, nil
}

// SetListingActive toggles is_active. The owner guard is part of the UPDATE.
func (d *DB) SetListingActive(ctx context.Context, id uuid.UUID, ownerChatID int64, active bool) (bool, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx,
		`UPDATE listings SET is_active = $3 WHERE id = $1 AND owner_chat_id = $2`,
		id, ownerChatID, active)
	if err != nil {
		return false, unavailable("set listing active", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("set listing active", err)
	}
	return n > 0, nil
}

// DeleteListing hard-deletes a listing; bookings cascade via the FK.
func (d *DB) DeleteListing(ctx context.Context, id uuid.UUID, ownerChatID int64) (bool, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx,
		`DELETE FROM listings WHERE id = $1 AND owner_chat_id = $2`,
		id, ownerChatID)
	if err != nil {
		return false, unavailable("delete listing", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("delete listing", err)
	}
	return n > 0, nil
}

func (d *DB) CountListings(ctx context.Context) (int64, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, unavailable("count listings", err)
	}
	return n, nil
}
