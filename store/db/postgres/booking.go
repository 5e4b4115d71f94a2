package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/safartrip/safarbot/store"
)

const bookingColumns = `id, listing_id, user_chat_id, owner_chat_id, payload, status,
	created_at, dispatched_at, expires_at, partner_message_id`

func scanBooking(row interface{ Scan(...any) error }) (*store.Booking, error) {
	b := &store.Booking{}
	var payload []byte
	err := row.Scan(
		&b.ID, &b.ListingID, &b.UserChatID, &b.OwnerChatID, &payload, &b.Status,
		&b.CreatedAt, &b.DispatchedAt, &b.ExpiresAt, &b.PartnerMessageID,
	)
	if err != nil {
		return nil, err
	}
	p, err := store.DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	b.Payload = *p
	return b, nil
}

func (d *DB) CreateBooking(ctx context.Context, create *store.CreateBooking) (*store.Booking, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	payload, err := json.Marshal(create.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	stmt := `
		INSERT INTO bookings (listing_id, user_chat_id, owner_chat_id, payload, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + bookingColumns

	row := d.db.QueryRowContext(ctx, stmt,
		create.ListingID, create.UserChatID, create.OwnerChatID,
		payload, store.StatusPendingPartner, create.ExpiresAt,
	)
	booking, err := scanBooking(row)
	if err != nil {
		return nil, unavailable("create booking", err)
	}
	return booking, nil
}

func (d *DB) GetBooking(ctx context.Context, id uuid.UUID) (*store.Booking, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	booking, err := scanBooking(row)
	if err != nil {
		return nil, scanErr("get booking", err)
	}
	return booking, nil
}

// GetBookingByPrefix resolves the bid8 prefix carried in callback tokens.
func (d *DB) GetBookingByPrefix(ctx context.Context, prefix string) (*store.Booking, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	row := d.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id::text LIKE $1 LIMIT 1`,
		prefix+"%")
	booking, err := scanBooking(row)
	if err != nil {
		return nil, scanErr("get booking by prefix", err)
	}
	return booking, nil
}

func (d *DB) ListBookingsByUser(ctx context.Context, userChatID int64, limit int) ([]*store.Booking, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_chat_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userChatID, limit)
	if err != nil {
		return nil, unavailable("list bookings", err)
	}
	defer rows.Close()

	list := make([]*store.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, unavailable("scan booking", err)
		}
		list = append(list, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate bookings", err)
	}
	return list, nil
}

// MarkDispatched is the only transition into 'sent'. The status guard makes
// it a no-op after a lost race; COALESCE keeps the earliest message id if a
// restarted worker dispatches twice.
func (d *DB) MarkDispatched(ctx context.Context, id uuid.UUID, partnerMessageID int) (bool, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3, dispatched_at = now(),
		    partner_message_id = COALESCE(partner_message_id, $2)
		WHERE id = $1 AND status = $4`,
		id, partnerMessageID, store.StatusSent, store.StatusPendingPartner)
	if err != nil {
		return false, unavailable("mark dispatched", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("mark dispatched", err)
	}
	return n > 0, nil
}

// Decide applies an owner accept/reject. The owner identity check is part of
// the WHERE clause, not a pre-read, so there is no window between check and
// update.
func (d *DB) Decide(ctx context.Context, id uuid.UUID, ownerChatID int64, status store.BookingStatus) (bool, error) {
	if !status.Terminal() || status == store.StatusTimeout {
		return false, fmt.Errorf("decide: %q is not an owner decision", status)
	}
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3
		WHERE id = $1 AND owner_chat_id = $2 AND status IN ($4, $5)`,
		id, ownerChatID, status, store.StatusPendingPartner, store.StatusSent)
	if err != nil {
		return false, unavailable("decide booking", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("decide booking", err)
	}
	return n > 0, nil
}

// SweepExpired times out every overdue booking in one statement. Under READ
// COMMITTED the row lock in the UPDATE guarantees each expired row is
// returned by exactly one concurrent sweep.
func (d *DB) SweepExpired(ctx context.Context) ([]*store.ExpiredBooking, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	stmt := `
		WITH expired AS (
			UPDATE bookings SET status = $1
			WHERE status IN ($2, $3)
			  AND COALESCE(dispatched_at, created_at) + interval '5 minutes' < now()
			RETURNING id, user_chat_id, owner_chat_id, listing_id, dispatched_at
		)
		SELECT e.id, e.user_chat_id, e.owner_chat_id, e.listing_id,
		       e.dispatched_at IS NOT NULL,
		       COALESCE(l.title, ''), COALESCE(u.phone, ''),
		       COALESCE(u.first_name, ''), COALESCE(u.last_name, '')
		FROM expired e
		LEFT JOIN listings l ON e.listing_id = l.id
		LEFT JOIN users u ON e.owner_chat_id = u.chat_id`

	rows, err := d.db.QueryContext(ctx, stmt,
		store.StatusTimeout, store.StatusPendingPartner, store.StatusSent)
	if err != nil {
		return nil, unavailable("sweep expired", err)
	}
	defer rows.Close()

	expired := make([]*store.ExpiredBooking, 0)
	for rows.Next() {
		e := &store.ExpiredBooking{}
		err := rows.Scan(
			&e.ID, &e.UserChatID, &e.OwnerChatID, &e.ListingID, &e.WasDispatched,
			&e.ListingTitle, &e.OwnerPhone, &e.OwnerFirstName, &e.OwnerLastName,
		)
		if err != nil {
			return nil, unavailable("scan expired booking", err)
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate expired bookings", err)
	}
	return expired, nil
}

func (d *DB) CountBookings(ctx context.Context) (int64, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n); err != nil {
		return 0, unavailable("count bookings", err)
	}
	return n, nil
}
