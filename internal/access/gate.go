// Package access decides whether a user may run an operation. The gate is
// consulted before any repository work; a denied request never reaches
// storage.
package access

import (
	"context"
	"log/slog"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

// Action identifies one gated operation.
type Action string

// Gated operations.
const (
	ActionAddAccount     Action = "account.add"
	ActionListAccounts   Action = "account.list"
	ActionDeleteAccount  Action = "account.delete"
	ActionExportAccounts Action = "account.export"
	ActionViewStats      Action = "stats.view"
	ActionManageProxies  Action = "proxy.manage"

	ActionWhitelistAdd    Action = "admin.whitelist.add"
	ActionWhitelistRemove Action = "admin.whitelist.remove"
)

// adminActions require the admin flag regardless of enforcement mode.
var adminActions = map[Action]bool{
	ActionWhitelistAdd:    true,
	ActionWhitelistRemove: true,
}

// Gate evaluates the whitelist policy.
type Gate struct {
	users   repository.UserRepository
	enabled bool
}

// NewGate constructs a gate. With enabled false every known user passes
// non-admin actions; admin actions always require the admin flag.
func NewGate(users repository.UserRepository, enabled bool) *Gate {
	return &Gate{users: users, enabled: enabled}
}

// Enabled reports whether whitelist enforcement is on.
func (g *Gate) Enabled() bool { return g.enabled }

// Allows applies the policy to an already-loaded user.
func (g *Gate) Allows(u *model.User, action Action) error {
	if adminActions[action] {
		if !u.IsAdmin {
			return errs.ErrAdminOnly
		}
		return nil
	}
	if !g.enabled {
		return nil
	}
	if u.IsWhitelisted || u.IsAdmin {
		return nil
	}
	return errs.ErrAccessDenied
}

// Authorize loads the user for a Telegram id and applies the policy.
// An unknown identity is denied like a non-whitelisted one. It serves
// callers that only hold a Telegram id; the bot handlers already load the
// user while registering the interaction and go straight to Allows.
func (g *Gate) Authorize(ctx context.Context, telegramID int64, action Action) (*model.User, error) {
	u, err := g.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		logger.Warn(ctx, "service.access", "access.deny.unknown",
			slog.Int64("user_id", telegramID),
			slog.String("action", string(action)),
		)
		return nil, errs.ErrAccessDenied
	}
	if err := g.Allows(u, action); err != nil {
		logger.Warn(ctx, "service.access", "access.deny",
			slog.Int64("user_id", telegramID),
			slog.String("action", string(action)),
		)
		return nil, err
	}
	return u, nil
}

// Approve flips the whitelist flag on for a Telegram id. The row is created
// if the identity has never talked to the bot.
func (g *Gate) Approve(ctx context.Context, telegramID int64) error {
	if err := g.users.SetWhitelisted(ctx, telegramID, true); err != nil {
		return err
	}
	logger.Info(ctx, "service.access", "access.whitelist.add",
		slog.Int64("user_id", telegramID),
	)
	return nil
}

// Revoke flips the whitelist flag off for a Telegram id.
func (g *Gate) Revoke(ctx context.Context, telegramID int64) error {
	if err := g.users.SetWhitelisted(ctx, telegramID, false); err != nil {
		return err
	}
	logger.Info(ctx, "service.access", "access.whitelist.remove",
		slog.Int64("user_id", telegramID),
	)
	return nil
}
