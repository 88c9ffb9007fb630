package repository

import (
	"context"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
)

// AccountFilter narrows account listings. Zero values mean "no constraint".
type AccountFilter struct {
	CountryCode string
	Date        string // YYYY-MM-DD
	Limit       int
}

// Grouped is the read-time projection country code -> date -> accounts.
// Accounts without a resolved country group under the empty key.
type Grouped map[string]map[string][]model.Account

// AccountRepository stores Telegram accounts. All methods are scoped to the
// owning user id; a missing row and a row owned by someone else are both
// reported as errs.ErrNotOwner.
type AccountRepository interface {
	// Insert persists a new account and returns its id. A (owner, phone)
	// collision yields errs.ErrDuplicatePhone; the uniqueness constraint in
	// the schema makes concurrent inserts resolve to exactly one winner.
	Insert(ctx context.Context, a *model.Account) (int64, error)
	// Get returns one account by id for the owner.
	Get(ctx context.Context, ownerID, accountID int64) (*model.Account, error)
	// ListByUser returns the owner's accounts ordered by addition date
	// descending, then phone ascending.
	ListByUser(ctx context.Context, ownerID int64, f AccountFilter) ([]model.Account, error)
	// ListByIDs returns the subset of the given ids owned by ownerID.
	ListByIDs(ctx context.Context, ownerID int64, ids []int64) ([]model.Account, error)
	// GroupByCountryThenDate projects the owner's accounts into nested maps.
	GroupByCountryThenDate(ctx context.Context, ownerID int64) (Grouped, error)
	// Delete removes one account owned by ownerID.
	Delete(ctx context.Context, ownerID, accountID int64) error
	// Statistics aggregates totals and per-country/per-date counts.
	Statistics(ctx context.Context, ownerID int64) (*model.Stats, error)
	// AssignProxy sets or clears (proxyID == 0) the proxy reference of an
	// account owned by ownerID.
	AssignProxy(ctx context.Context, ownerID, accountID, proxyID int64) error
}
