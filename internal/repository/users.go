// Package repository declares the storage contracts of the account manager.
// Every query over owned entities takes the owner as a mandatory parameter;
// ownership filtering happens in SQL, not in callers.
package repository

import (
	"context"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
)

// UserRepository stores bot users keyed by their Telegram id.
type UserRepository interface {
	// GetOrCreate returns the user for the Telegram id, creating it on first
	// interaction with the supplied profile fields.
	GetOrCreate(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, error)
	// GetByTelegramID returns the user or errs.ErrNotOwner when unknown.
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	// SetWhitelisted flips the whitelist flag for a Telegram id.
	SetWhitelisted(ctx context.Context, telegramID int64, whitelisted bool) error
	// SetAdmin flips the admin flag for a Telegram id.
	SetAdmin(ctx context.Context, telegramID int64, admin bool) error
}
