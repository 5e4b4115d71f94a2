package postgres

import (
	"context"

	"github.com/safartrip/safarbot/store"
)

func (d *DB) UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*store.User, error) {
	if err := upsert.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	stmt := `
		INSERT INTO users (chat_id, phone, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE
		SET phone = EXCLUDED.phone,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = now()
		RETURNING chat_id, phone, first_name, last_name, created_at, updated_at`

	user := &store.User{}
	err := d.db.QueryRowContext(ctx, stmt, upsert.ChatID, upsert.Phone, upsert.FirstName, upsert.LastName).Scan(
		&user.ChatID, &user.Phone, &user.FirstName, &user.LastName, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, unavailable("upsert user", err)
	}
	return user, nil
}

func (d *DB) GetUser(ctx context.Context, chatID int64) (*store.User, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	stmt := `
		SELECT chat_id, phone, first_name, last_name, created_at, updated_at
		FROM users WHERE chat_id = $1`

	user := &store.User{}
	err := d.db.QueryRowContext(ctx, stmt, chatID).Scan(
		&user.ChatID, &user.Phone, &user.FirstName, &user.LastName, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, scanErr("get user", err)
	}
	return user, nil
}
