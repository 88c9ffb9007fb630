// Package service holds the domain logic between bot handlers and storage.
// Services validate input, enforce per-user scoping and delegate persistence
// to the repositories.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

// Users manages bot user records.
type Users struct {
	repo repository.UserRepository
}

// NewUsers constructs the user service.
func NewUsers(repo repository.UserRepository) *Users {
	return &Users{repo: repo}
}

// Touch returns the user for a Telegram identity, creating the record on
// first contact. Profile fields are refreshed on every call so listings stay
// current without a separate update path.
func (s *Users) Touch(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, error) {
	u, err := s.repo.GetOrCreate(ctx, telegramID, username, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}
	logger.Debug(ctx, "service.users", "user.touch",
		slog.Int64("user_id", u.TelegramID),
	)
	return u, nil
}

// Get returns the user for a Telegram id without creating it.
func (s *Users) Get(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.repo.GetByTelegramID(ctx, telegramID)
}
