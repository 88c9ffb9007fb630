package bot

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	tg "github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/callbacks"
	tghelpers "github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/helpers"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/access"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/country"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/exporter"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

func (h *Handlers) registerCallbacks(reg *tg.Registry) {
	_ = reg.RegisterCallback(cbAccCountry, h.cbCountry)
	_ = reg.RegisterCallback(cbAccDate, h.cbDate)
	_ = reg.RegisterCallback(cbAccView, h.cbAccountView)
	_ = reg.RegisterCallback(cbAccDelete, h.cbAccountDelete)
	_ = reg.RegisterCallback(cbAccDeleteOK, h.cbAccountDeleteConfirm)
	_ = reg.RegisterCallback(cbAccExport, h.cbAccountExport)
	_ = reg.RegisterCallback(cbAccArchive, h.cbAccountArchive)
	_ = reg.RegisterCallback(cbAccProxy, h.cbAccountProxy)
	_ = reg.RegisterCallback(cbProxyAssign, h.cbProxyAssign)
	_ = reg.RegisterCallback(cbProxyAdd, h.cbProxyAdd)
	_ = reg.RegisterCallback(cbProxyDelete, h.cbProxyDelete)
	_ = reg.RegisterCallback(cbExportScope, h.cbExportScope)
	_ = reg.RegisterCallback(cbExportFormat, h.cbExportFormat)
}

func (h *Handlers) cbCountry(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionListAccounts)
	if err != nil {
		return replyError(c, err)
	}
	code := callbacks.CallbackPayload(c)
	grouped, err := h.Accounts.Grouped(ctx, u.ID)
	if err != nil {
		return replyError(c, err)
	}
	byDate, ok := grouped[code]
	if !ok {
		return tghelpers.EditOrSendMD(c, "No accounts in this group anymore.")
	}
	label := noCountryLabel
	if code != "" {
		label = country.FlagEmoji(code) + " " + code
	}
	return tghelpers.EditOrSendMD(c, "📅 "+label+" — pick a date:", dateKeyboard(code, byDate))
}

func (h *Handlers) cbDate(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionListAccounts)
	if err != nil {
		return replyError(c, err)
	}
	parts := strings.SplitN(callbacks.CallbackPayload(c), "|", 2)
	if len(parts) != 2 {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	code, date := parts[0], parts[1]
	var accounts []model.Account
	if code != "" {
		accounts, err = h.Accounts.List(ctx, u.ID, repository.AccountFilter{CountryCode: code, Date: date})
	} else {
		// The unknown-country group has a null code, which the SQL filter
		// can't express; narrow it client-side.
		var all []model.Account
		all, err = h.Accounts.List(ctx, u.ID, repository.AccountFilter{Date: date})
		for _, a := range all {
			if !a.CountryCode.Valid {
				accounts = append(accounts, a)
			}
		}
	}
	if err != nil {
		return replyError(c, err)
	}
	if len(accounts) == 0 {
		return tghelpers.EditOrSendMD(c, "No accounts in this group anymore.")
	}
	return tghelpers.EditOrSendMD(c, "📞 "+date+" — pick an account:", accountListKeyboard(accounts))
}

func (h *Handlers) cbAccountView(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionListAccounts)
	if err != nil {
		return replyError(c, err)
	}
	accountID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	a, err := h.Accounts.Get(ctx, u.ID, accountID)
	if err != nil {
		return replyError(c, err)
	}
	return tghelpers.EditOrSendMD(c, renderAccount(a), accountActionsKeyboard(a.ID))
}

func (h *Handlers) cbAccountDelete(c tele.Context) error {
	_, _, err := h.authorize(c, access.ActionDeleteAccount)
	if err != nil {
		return replyError(c, err)
	}
	accountID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	return tghelpers.EditOrSendMD(c, "Delete this account and its session file?", deleteConfirmKeyboard(accountID))
}

func (h *Handlers) cbAccountDeleteConfirm(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionDeleteAccount)
	if err != nil {
		return replyError(c, err)
	}
	accountID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	if err := h.Accounts.Delete(ctx, u.ID, accountID); err != nil {
		return replyError(c, err)
	}
	return tghelpers.EditOrSendMD(c, "🗑 Account deleted.")
}

func (h *Handlers) cbAccountExport(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionExportAccounts)
	if err != nil {
		return replyError(c, err)
	}
	accountID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	a, data, err := h.Accounts.SessionData(ctx, u.ID, accountID)
	if err != nil {
		return replyError(c, err)
	}
	return sendSessionFile(c, a.PhoneNumber, data)
}

// cbAccountArchive starts a one-account archive export.
func (h *Handlers) cbAccountArchive(c tele.Context) error {
	_, _, err := h.authorize(c, access.ActionExportAccounts)
	if err != nil {
		return replyError(c, err)
	}
	accountID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	return tghelpers.EditOrSendMD(c, "📦 Pick an export format:",
		exportFormatKeyboard(exportSelection{AccountID: accountID}))
}

func (h *Handlers) cbAccountProxy(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionManageProxies)
	if err != nil {
		return replyError(c, err)
	}
	accountID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	proxies, err := h.Proxies.List(ctx, u.ID)
	if err != nil {
		return replyError(c, err)
	}
	if len(proxies) == 0 {
		return tghelpers.EditOrSendMD(c, "No proxies configured. Add one via /proxy first.")
	}
	return tghelpers.EditOrSendMD(c, "🔌 Pick a proxy for this account:", proxyAssignKeyboard(accountID, proxies))
}

func (h *Handlers) cbProxyAssign(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionManageProxies)
	if err != nil {
		return replyError(c, err)
	}
	accountID, proxyID, err := callbacks.PayloadTwoInt64(c, "|")
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	if err := h.Proxies.Assign(ctx, u.ID, accountID, proxyID); err != nil {
		return replyError(c, err)
	}
	if proxyID == 0 {
		return tghelpers.EditOrSendMD(c, "🚫 Proxy cleared, account connects directly.")
	}
	return tghelpers.EditOrSendMD(c, "✅ Proxy assigned.")
}

func (h *Handlers) cbProxyAdd(c tele.Context) error {
	_, _, err := h.authorize(c, access.ActionManageProxies)
	if err != nil {
		return replyError(c, err)
	}
	h.FSM.SetState(c.Sender().ID, stateAwaitProxy)
	return tghelpers.SendMD(c, "Send the proxy as `host:port`, `host:port:user:pass` or a `socks5://` URL.\nUse /cancel to abort.")
}

func (h *Handlers) cbProxyDelete(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionManageProxies)
	if err != nil {
		return replyError(c, err)
	}
	proxyID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	if err := h.Proxies.Remove(ctx, u.ID, proxyID); err != nil {
		return replyError(c, err)
	}
	return tghelpers.EditOrSendMD(c, "🗑 Proxy removed. Accounts that used it now connect directly.")
}

// cbExportScope carries the chosen count over to the format keyboard.
func (h *Handlers) cbExportScope(c tele.Context) error {
	_, _, err := h.authorize(c, access.ActionExportAccounts)
	if err != nil {
		return replyError(c, err)
	}
	limit, err := callbacks.PayloadInt(c)
	if err != nil || limit < 0 {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	return tghelpers.EditOrSendMD(c, "📦 Pick an export format:",
		exportFormatKeyboard(exportSelection{Limit: limit}))
}

func (h *Handlers) cbExportFormat(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionExportAccounts)
	if err != nil {
		return replyError(c, err)
	}
	fmtName, rest, ok := strings.Cut(callbacks.CallbackPayload(c), "|")
	if !ok {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	format, err := exporter.ParseFormat(fmtName)
	if err != nil {
		return replyError(c, err)
	}
	sel, err := parseExportSelection(rest)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Not found.")
	}
	var accounts []model.Account
	if sel.AccountID != 0 {
		accounts, err = h.Accounts.ByIDs(ctx, u.ID, []int64{sel.AccountID})
	} else {
		accounts, err = h.Accounts.List(ctx, u.ID, repository.AccountFilter{Limit: sel.Limit})
	}
	if err != nil {
		return replyError(c, err)
	}
	archive, failures, err := h.Exporter.Export(ctx, accounts, format)
	if err != nil {
		return replyError(c, err)
	}
	name := fmt.Sprintf("accounts_%s.zip", format)
	if h.Archives != nil {
		// The on-disk copy is per user; delivery does not depend on it.
		if _, err := h.Archives.Save(fmt.Sprintf("u%d_%s", u.ID, name), archive); err != nil {
			logger.Warn(ctx, "service.export", "export.archive_copy",
				slog.Int64("user_id", u.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := sendArchive(c, name, archive); err != nil {
		return err
	}
	if len(failures) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "⚠️ %d account(s) skipped:\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(&b, "  `%s`\n", f.Phone)
		}
		return tghelpers.SendMD(c, b.String())
	}
	return nil
}

func sendSessionFile(c tele.Context, phone string, data []byte) error {
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: phone + ".session",
	}
	return c.Send(doc)
}

func renderAccount(a *model.Account) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", a.PhoneNumber)
	if a.CountryCode.Valid {
		fmt.Fprintf(&b, "Country: %s %s\n", country.FlagEmoji(a.CountryCode.String), a.CountryName.String)
	} else {
		b.WriteString("Country: unknown\n")
	}
	fmt.Fprintf(&b, "Added: %s\n", a.DateKey())
	if a.ProxyID.Valid {
		fmt.Fprintf(&b, "Proxy: #%d\n", a.ProxyID.Int64)
	} else {
		b.WriteString("Proxy: direct\n")
	}
	return b.String()
}
