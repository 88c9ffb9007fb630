// Package postgres implements the repository contracts on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
)

// UserRepo implements repository.UserRepository.
type UserRepo struct{ db *sqlx.DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// GetOrCreate returns the user for a Telegram id, inserting it on first contact.
// Profile fields are refreshed on every call so listings stay current.
func (r *UserRepo) GetOrCreate(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, error) {
	const q = `
INSERT INTO users (telegram_id, username, first_name, last_name)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
ON CONFLICT (telegram_id) DO UPDATE SET
    username   = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
    first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
    last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
    updated_at = now()
RETURNING id, telegram_id, username, first_name, last_name,
          is_admin, is_whitelisted, created_at, updated_at`

	var u model.User
	if err := r.db.GetContext(ctx, &u, q, telegramID, username, firstName, lastName); err != nil {
		return nil, fmt.Errorf("users get-or-create: %w", err)
	}
	return &u, nil
}

// GetByTelegramID returns the user or errs.ErrNotOwner when unknown.
func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	const q = `
SELECT id, telegram_id, username, first_name, last_name,
       is_admin, is_whitelisted, created_at, updated_at
FROM users WHERE telegram_id = $1`

	var u model.User
	if err := r.db.GetContext(ctx, &u, q, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotOwner
		}
		return nil, fmt.Errorf("users get: %w", err)
	}
	return &u, nil
}

// SetWhitelisted flips the whitelist flag, creating the user row if needed so
// identities can be approved before their first interaction.
func (r *UserRepo) SetWhitelisted(ctx context.Context, telegramID int64, whitelisted bool) error {
	const q = `
INSERT INTO users (telegram_id, is_whitelisted)
VALUES ($1, $2)
ON CONFLICT (telegram_id) DO UPDATE SET is_whitelisted = $2, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, q, telegramID, whitelisted); err != nil {
		return fmt.Errorf("users set whitelisted: %w", err)
	}
	return nil
}

// SetAdmin flips the admin flag, creating the user row if needed.
func (r *UserRepo) SetAdmin(ctx context.Context, telegramID int64, admin bool) error {
	const q = `
INSERT INTO users (telegram_id, is_admin)
VALUES ($1, $2)
ON CONFLICT (telegram_id) DO UPDATE SET is_admin = $2, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, q, telegramID, admin); err != nil {
		return fmt.Errorf("users set admin: %w", err)
	}
	return nil
}
