package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

// ArtifactStore is the slice of the file store the account service needs.
type ArtifactStore interface {
	Read(name string) ([]byte, error)
	Remove(name string) error
}

// Accounts manages stored accounts for their owners. Every method takes the
// owner's Telegram-side user id and never returns another user's rows.
type Accounts struct {
	repo  repository.AccountRepository
	store ArtifactStore
}

// NewAccounts constructs the account service.
func NewAccounts(repo repository.AccountRepository, store ArtifactStore) *Accounts {
	return &Accounts{repo: repo, store: store}
}

// List returns the owner's accounts, newest addition date first.
func (s *Accounts) List(ctx context.Context, ownerID int64, f repository.AccountFilter) ([]model.Account, error) {
	return s.repo.ListByUser(ctx, ownerID, f)
}

// ByIDs returns the owned subset of the given account ids, newest first.
func (s *Accounts) ByIDs(ctx context.Context, ownerID int64, ids []int64) ([]model.Account, error) {
	return s.repo.ListByIDs(ctx, ownerID, ids)
}

// Grouped returns the owner's accounts projected country -> date -> accounts.
func (s *Accounts) Grouped(ctx context.Context, ownerID int64) (repository.Grouped, error) {
	return s.repo.GroupByCountryThenDate(ctx, ownerID)
}

// Get returns one owned account.
func (s *Accounts) Get(ctx context.Context, ownerID, accountID int64) (*model.Account, error) {
	return s.repo.Get(ctx, ownerID, accountID)
}

// SessionData returns the raw session artifact of one owned account. The
// ownership check runs before any file access.
func (s *Accounts) SessionData(ctx context.Context, ownerID, accountID int64) (*model.Account, []byte, error) {
	a, err := s.repo.Get(ctx, ownerID, accountID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.Read(a.SessionFile)
	if err != nil {
		return nil, nil, fmt.Errorf("session data: %w", err)
	}
	return a, data, nil
}

// Delete removes an owned account and its session artifact. The row goes
// first; an orphaned file is recoverable, an orphaned row is not.
func (s *Accounts) Delete(ctx context.Context, ownerID, accountID int64) error {
	a, err := s.repo.Get(ctx, ownerID, accountID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerID, accountID); err != nil {
		return err
	}
	if err := s.store.Remove(a.SessionFile); err != nil {
		logger.Warn(ctx, "service.accounts", "account.delete.artifact_orphaned",
			slog.Int64("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
	logger.Info(ctx, "service.accounts", "account.delete",
		slog.Int64("user_id", ownerID),
		slog.Int64("account_id", accountID),
		slog.String("phone", a.PhoneNumber),
	)
	return nil
}

// Stats aggregates the owner's account counts.
func (s *Accounts) Stats(ctx context.Context, ownerID int64) (*model.Stats, error) {
	return s.repo.Statistics(ctx, ownerID)
}
