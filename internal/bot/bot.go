// Package bot wires the conversational surface: commands, callbacks and the
// FSM text-input states.
package bot

import (
	"context"

	tele "gopkg.in/telebot.v4"

	tg "github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/commands"
	tghelpers "github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/helpers"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/state"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/access"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/exporter"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/onboarding"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/service"
)

// ArchiveSink keeps a copy of produced export archives.
type ArchiveSink interface {
	Save(name string, data []byte) (string, error)
}

// Handlers bundles everything the conversational layer calls into.
type Handlers struct {
	Users    *service.Users
	Accounts *service.Accounts
	Proxies  *service.Proxies
	Gate     *access.Gate
	Machine  *onboarding.Machine
	Exporter *exporter.Exporter
	Archives ArchiveSink
	FSM      state.Manager
}

// Register wires all commands, callbacks and FSM states into the registry.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.cmdStart,
		Description: "Register and show the welcome screen",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.cmdHelp,
		Description: "Show available commands",
	})
	reg.RegisterCommand("/add", commands.Command{
		Handler:     h.cmdAdd,
		Description: "Add a new account",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.cmdCancel,
		Description: "Cancel the current operation",
	})
	reg.RegisterCommand("/accounts", commands.Command{
		Handler:     h.cmdAccounts,
		Description: "Browse stored accounts",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     h.cmdStats,
		Description: "Show account statistics",
	})
	reg.RegisterCommand("/export", commands.Command{
		Handler:     h.cmdExport,
		Description: "Export accounts as an archive",
	})
	reg.RegisterCommand("/proxy", commands.Command{
		Handler:     h.cmdProxy,
		Description: "Manage proxies",
	})
	reg.RegisterCommand("/whitelist_add", commands.Command{
		Handler:     h.cmdWhitelistAdd,
		Description: "Approve a user id",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/whitelist_remove", commands.Command{
		Handler:     h.cmdWhitelistRemove,
		Description: "Revoke a user id",
		AdminOnly:   true,
		Hidden:      true,
	})

	h.registerCallbacks(reg)
	h.registerStates()
}

// authorize creates/refreshes the user row and applies the access policy.
// Handlers call it before touching any domain data.
func (h *Handlers) authorize(c tele.Context, action access.Action) (context.Context, *model.User, error) {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	u, err := h.Users.Touch(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName)
	if err != nil {
		return ctx, nil, err
	}
	if err := h.Gate.Allows(u, action); err != nil {
		return ctx, nil, err
	}
	return ctx, u, nil
}

// keyFor identifies the onboarding conversation of a user in the current
// chat. The key carries the internal user id, the same id the repositories
// scope their queries by, plus the Telegram id the FSM router is keyed by.
func keyFor(u *model.User, c tele.Context) onboarding.Key {
	key := onboarding.Key{UserID: u.ID, TelegramID: u.TelegramID}
	if chat := c.Chat(); chat != nil {
		key.ChatID = chat.ID
	}
	return key
}
