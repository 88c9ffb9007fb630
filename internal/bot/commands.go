package bot

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/format"
	tghelpers "github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/helpers"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/access"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/service"
)

const helpText = `*Account Manager*

/add — add a new account (phone login)
/accounts — browse stored accounts by country and date
/stats — account statistics
/export — download accounts as an archive
/proxy — manage SOCKS5 proxies
/cancel — abort the current operation`

func (h *Handlers) cmdStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	u, err := h.Users.Touch(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName)
	if err != nil {
		return replyError(c, err)
	}
	if h.Gate.Enabled() && !u.IsWhitelisted && !u.IsAdmin {
		return tghelpers.SendMD(c, "👋 Registered. Access is restricted; ask an administrator to approve your id: `"+
			strconv.FormatInt(u.TelegramID, 10)+"`")
	}
	return tghelpers.SendMD(c, helpText)
}

func (h *Handlers) cmdHelp(c tele.Context) error {
	return tghelpers.SendMD(c, helpText)
}

func (h *Handlers) cmdAdd(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionAddAccount)
	if err != nil {
		return replyError(c, err)
	}
	if err := h.Machine.Begin(ctx, keyFor(u, c)); err != nil {
		return replyError(c, err)
	}
	h.FSM.SetState(c.Sender().ID, stateAwaitPhone)
	return tghelpers.SendMD(c, "📱 Send the phone number in international format, e.g. `+31612345678`.\nUse /cancel to abort.")
}

func (h *Handlers) cmdCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	userID := sender.ID

	// Cancel is never gated: whoever started a flow may always abort it.
	u, err := h.Users.Touch(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName)
	if err != nil {
		return replyError(c, err)
	}
	err = h.Machine.Cancel(ctx, keyFor(u, c))
	hadFSM := h.FSM.HasState(userID)
	h.FSM.Clear(userID)

	if errors.Is(err, errs.ErrNoOnboarding) && !hadFSM {
		return tghelpers.SendMD(c, "Nothing to cancel.")
	}
	return tghelpers.SendMD(c, "❌ Operation cancelled.")
}

func (h *Handlers) cmdAccounts(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionListAccounts)
	if err != nil {
		return replyError(c, err)
	}
	grouped, err := h.Accounts.Grouped(ctx, u.ID)
	if err != nil {
		return replyError(c, err)
	}
	if len(grouped) == 0 {
		return tghelpers.SendMD(c, "No accounts yet. Use /add to store one.")
	}
	return tghelpers.SendMD(c, "🌍 Pick a country:", countryKeyboard(grouped))
}

func (h *Handlers) cmdStats(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionViewStats)
	if err != nil {
		return replyError(c, err)
	}
	stats, err := h.Accounts.Stats(ctx, u.ID)
	if err != nil {
		return replyError(c, err)
	}
	if stats.TotalAccounts == 0 {
		return tghelpers.SendMD(c, "No accounts yet. Use /add to store one.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Accounts:* %d\n\n*By country:*\n", stats.TotalAccounts)
	for _, code := range sortedKeys(stats.PerCountry) {
		label := code
		if label == "" {
			label = "unknown"
		}
		fmt.Fprintf(&b, "  %s — %d\n", label, stats.PerCountry[code])
	}
	b.WriteString("\n*By date:*\n")
	dates := sortedKeys(stats.PerDate)
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	for _, d := range dates {
		fmt.Fprintf(&b, "  %s — %d\n", d, stats.PerDate[d])
	}
	return tghelpers.SendMD(c, b.String())
}

func (h *Handlers) cmdExport(c tele.Context) error {
	_, _, err := h.authorize(c, access.ActionExportAccounts)
	if err != nil {
		return replyError(c, err)
	}
	return tghelpers.SendMD(c, "📦 How many accounts should the archive cover?", exportScopeKeyboard())
}

func (h *Handlers) cmdProxy(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionManageProxies)
	if err != nil {
		return replyError(c, err)
	}
	proxies, err := h.Proxies.List(ctx, u.ID)
	if err != nil {
		return replyError(c, err)
	}
	text := "🔌 No proxies configured."
	if len(proxies) > 0 {
		var b strings.Builder
		b.WriteString("🔌 *Proxies:*\n")
		for _, p := range proxies {
			fmt.Fprintf(&b, "  %s\n", format.EscapeV1(service.Display(p)))
		}
		text = b.String()
	}
	return tghelpers.SendMD(c, text, proxyListKeyboard(proxies))
}

func (h *Handlers) cmdWhitelistAdd(c tele.Context) error {
	return h.flipWhitelist(c, access.ActionWhitelistAdd)
}

func (h *Handlers) cmdWhitelistRemove(c tele.Context) error {
	return h.flipWhitelist(c, access.ActionWhitelistRemove)
}

func (h *Handlers) flipWhitelist(c tele.Context, action access.Action) error {
	ctx, _, err := h.authorize(c, action)
	if err != nil {
		return replyError(c, err)
	}
	target, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return tghelpers.SendMD(c, "Usage: `/whitelist_add 123456789`")
	}
	if action == access.ActionWhitelistAdd {
		err = h.Gate.Approve(ctx, target)
	} else {
		err = h.Gate.Revoke(ctx, target)
	}
	if err != nil {
		return replyError(c, err)
	}
	return tghelpers.SendMD(c, fmt.Sprintf("✅ Done for `%d`.", target))
}

// sendArchive delivers a zip to the chat.
func sendArchive(c tele.Context, name string, data []byte) error {
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: name,
	}
	return c.Send(doc)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// replyError maps sentinels onto user-facing messages. Anything unmapped
// gets a generic reply; the middleware has already logged the cause.
func replyError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, errs.ErrAccessDenied):
		return tghelpers.SendMD(c, "⛔️ You are not whitelisted. Ask an administrator for access.")
	case errors.Is(err, errs.ErrAdminOnly):
		return tghelpers.SendMD(c, "⛔️ Administrators only.")
	case errors.Is(err, errs.ErrNotOwner):
		return tghelpers.SendMD(c, "Not found.")
	case errors.Is(err, errs.ErrOnboardingInProgress):
		return tghelpers.SendMD(c, "An add-account flow is already running. Finish it or /cancel first.")
	case errors.Is(err, errs.ErrDuplicatePhone):
		return tghelpers.SendMD(c, "This phone number is already stored.")
	case errors.Is(err, errs.ErrEmptySelection):
		return tghelpers.SendMD(c, "Nothing to export yet.")
	case errors.Is(err, errs.ErrInvalidProxyConfig):
		return tghelpers.SendMD(c, "Invalid proxy. Expected `host:port`, `host:port:user:pass` or a `socks5://` URL.")
	}
	return tghelpers.SendMD(c, "Something went wrong, try again later.")
}
