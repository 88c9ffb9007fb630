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

// ProxyRepo implements repository.ProxyRepository.
type ProxyRepo struct{ db *sqlx.DB }

// NewProxyRepo constructs a proxy repository.
func NewProxyRepo(db *sqlx.DB) *ProxyRepo { return &ProxyRepo{db: db} }

const proxyColumns = `id, user_id, host, port, username, password, label, created_at`

// Insert persists a new proxy entry for ownerID.
func (r *ProxyRepo) Insert(ctx context.Context, p *model.Proxy) (int64, error) {
	const q = `
INSERT INTO proxies (user_id, host, port, username, password, label)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, q,
		p.UserID, p.Host, p.Port, p.Username, p.Password, p.Label,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("proxies insert: %w", err)
	}
	return id, nil
}

// Get returns one proxy owned by ownerID.
func (r *ProxyRepo) Get(ctx context.Context, ownerID, proxyID int64) (*model.Proxy, error) {
	q := `SELECT ` + proxyColumns + ` FROM proxies WHERE id = $1 AND user_id = $2`

	var p model.Proxy
	if err := r.db.GetContext(ctx, &p, q, proxyID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotOwner
		}
		return nil, fmt.Errorf("proxies get: %w", err)
	}
	return &p, nil
}

// ListByUser returns the owner's proxies in insertion order.
func (r *ProxyRepo) ListByUser(ctx context.Context, ownerID int64) ([]model.Proxy, error) {
	q := `SELECT ` + proxyColumns + ` FROM proxies WHERE user_id = $1 ORDER BY id ASC`

	var out []model.Proxy
	if err := r.db.SelectContext(ctx, &out, q, ownerID); err != nil {
		return nil, fmt.Errorf("proxies list: %w", err)
	}
	return out, nil
}

// Delete removes one owned proxy. Accounts referencing it keep working:
// the FK is ON DELETE SET NULL, so references clear atomically with the row.
func (r *ProxyRepo) Delete(ctx context.Context, ownerID, proxyID int64) error {
	const q = `DELETE FROM proxies WHERE id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, q, proxyID, ownerID)
	if err != nil {
		return fmt.Errorf("proxies delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("proxies delete rows: %w", err)
	}
	if n == 0 {
		return errs.ErrNotOwner
	}
	return nil
}
