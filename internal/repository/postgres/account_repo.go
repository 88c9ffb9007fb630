package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

const uniqueViolation = "23505"

// AccountRepo implements repository.AccountRepository.
type AccountRepo struct{ db *sqlx.DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, user_id, phone_number, country_code, country_name,
       added_date, session_file, proxy_id, created_at`

// Insert persists a new account. The accounts_owner_phone_uniq constraint
// turns a concurrent duplicate into exactly one errs.ErrDuplicatePhone.
func (r *AccountRepo) Insert(ctx context.Context, a *model.Account) (int64, error) {
	const q = `
INSERT INTO accounts (user_id, phone_number, country_code, country_name, added_date, session_file, proxy_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, q,
		a.UserID, a.PhoneNumber, a.CountryCode, a.CountryName,
		a.AddedDate, a.SessionFile, a.ProxyID,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return 0, errs.ErrDuplicatePhone
		}
		return 0, fmt.Errorf("accounts insert: %w", err)
	}
	return id, nil
}

// Get returns one account owned by ownerID.
func (r *AccountRepo) Get(ctx context.Context, ownerID, accountID int64) (*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND user_id = $2`

	var a model.Account
	if err := r.db.GetContext(ctx, &a, q, accountID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotOwner
		}
		return nil, fmt.Errorf("accounts get: %w", err)
	}
	return &a, nil
}

// ListByUser returns the owner's accounts with stable ordering for pagination.
func (r *AccountRepo) ListByUser(ctx context.Context, ownerID int64, f repository.AccountFilter) ([]model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	args := []any{ownerID}

	if f.CountryCode != "" {
		args = append(args, f.CountryCode)
		q += fmt.Sprintf(" AND country_code = $%d", len(args))
	}
	if f.Date != "" {
		args = append(args, f.Date)
		q += fmt.Sprintf(" AND added_date = $%d", len(args))
	}
	q += " ORDER BY added_date DESC, phone_number ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var out []model.Account
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("accounts list: %w", err)
	}
	return out, nil
}

// ListByIDs returns the subset of ids owned by ownerID, ordered like ListByUser.
func (r *AccountRepo) ListByIDs(ctx context.Context, ownerID int64, ids []int64) ([]model.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + accountColumns + ` FROM accounts
WHERE user_id = $1 AND id = ANY($2)
ORDER BY added_date DESC, phone_number ASC`

	var out []model.Account
	if err := r.db.SelectContext(ctx, &out, q, ownerID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("accounts list by ids: %w", err)
	}
	return out, nil
}

// GroupByCountryThenDate builds the nested projection from current rows.
// Grouping is never stored, so it always reflects live data.
func (r *AccountRepo) GroupByCountryThenDate(ctx context.Context, ownerID int64) (repository.Grouped, error) {
	accounts, err := r.ListByUser(ctx, ownerID, repository.AccountFilter{})
	if err != nil {
		return nil, err
	}

	grouped := make(repository.Grouped)
	for _, a := range accounts {
		code := ""
		if a.CountryCode.Valid {
			code = a.CountryCode.String
		}
		byDate, ok := grouped[code]
		if !ok {
			byDate = make(map[string][]model.Account)
			grouped[code] = byDate
		}
		date := a.DateKey()
		byDate[date] = append(byDate[date], a)
	}
	return grouped, nil
}

// Delete removes one owned account. A miss on either id or owner collapses
// into errs.ErrNotOwner so existence cannot be probed.
func (r *AccountRepo) Delete(ctx context.Context, ownerID, accountID int64) error {
	const q = `DELETE FROM accounts WHERE id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, q, accountID, ownerID)
	if err != nil {
		return fmt.Errorf("accounts delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("accounts delete rows: %w", err)
	}
	if n == 0 {
		return errs.ErrNotOwner
	}
	return nil
}

// Statistics aggregates counts per country and per addition date.
func (r *AccountRepo) Statistics(ctx context.Context, ownerID int64) (*model.Stats, error) {
	stats := &model.Stats{
		PerCountry: make(map[string]int),
		PerDate:    make(map[string]int),
	}

	const totalQ = `SELECT COUNT(*) FROM accounts WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &stats.TotalAccounts, totalQ, ownerID); err != nil {
		return nil, fmt.Errorf("accounts stats total: %w", err)
	}

	const countryQ = `
SELECT COALESCE(country_code, '') AS country_code, COUNT(*) AS n
FROM accounts WHERE user_id = $1 GROUP BY country_code`
	countryRows := []struct {
		CountryCode string `db:"country_code"`
		N           int    `db:"n"`
	}{}
	if err := r.db.SelectContext(ctx, &countryRows, countryQ, ownerID); err != nil {
		return nil, fmt.Errorf("accounts stats country: %w", err)
	}
	for _, row := range countryRows {
		stats.PerCountry[row.CountryCode] = row.N
	}

	const dateQ = `
SELECT to_char(added_date, 'YYYY-MM-DD') AS added_date, COUNT(*) AS n
FROM accounts WHERE user_id = $1 GROUP BY added_date`
	dateRows := []struct {
		AddedDate string `db:"added_date"`
		N         int    `db:"n"`
	}{}
	if err := r.db.SelectContext(ctx, &dateRows, dateQ, ownerID); err != nil {
		return nil, fmt.Errorf("accounts stats date: %w", err)
	}
	for _, row := range dateRows {
		stats.PerDate[row.AddedDate] = row.N
	}

	return stats, nil
}

// AssignProxy sets or clears the proxy reference of an owned account.
// proxyID 0 clears; a non-zero proxy must belong to the same owner.
func (r *AccountRepo) AssignProxy(ctx context.Context, ownerID, accountID, proxyID int64) error {
	var (
		res sql.Result
		err error
	)
	if proxyID == 0 {
		const q = `UPDATE accounts SET proxy_id = NULL WHERE id = $1 AND user_id = $2`
		res, err = r.db.ExecContext(ctx, q, accountID, ownerID)
	} else {
		const q = `
UPDATE accounts SET proxy_id = $3
WHERE id = $1 AND user_id = $2
  AND EXISTS (SELECT 1 FROM proxies WHERE id = $3 AND user_id = $2)`
		res, err = r.db.ExecContext(ctx, q, accountID, ownerID, proxyID)
	}
	if err != nil {
		return fmt.Errorf("accounts assign proxy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("accounts assign proxy rows: %w", err)
	}
	if n == 0 {
		return errs.ErrNotOwner
	}
	return nil
}
