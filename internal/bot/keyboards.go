package bot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/keyboard"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/country"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

// Callback uniques. Keyboard builders and callback registration must agree
// on these keys.
const (
	cbAccCountry   = "acc_country"
	cbAccDate      = "acc_date"
	cbAccView      = "acc_view"
	cbAccDelete    = "acc_del"
	cbAccDeleteOK  = "acc_del_ok"
	cbAccExport    = "acc_exp"
	cbAccArchive   = "acc_arch"
	cbAccProxy     = "acc_proxy"
	cbProxyAssign  = "pxy_assign"
	cbProxyAdd     = "pxy_add"
	cbProxyDelete  = "pxy_del"
	cbExportScope  = "exp_scope"
	cbExportFormat = "exp_fmt"
)

const noCountryLabel = "🌐 Unknown"

func countryKeyboard(grouped repository.Grouped) *tele.ReplyMarkup {
	codes := make([]string, 0, len(grouped))
	for code := range grouped {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	buttons := make([]keyboard.InlineBtn, 0, len(codes))
	for _, code := range codes {
		total := 0
		for _, accs := range grouped[code] {
			total += len(accs)
		}
		label := noCountryLabel
		if code != "" {
			label = fmt.Sprintf("%s %s", country.FlagEmoji(code), code)
		}
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s (%d)", label, total),
			Unique: cbAccCountry,
			Data:   code,
		})
	}
	return keyboard.InlineButtonsNPerRow(buttons, 2)
}

func dateKeyboard(code string, byDate map[string][]model.Account) *tele.ReplyMarkup {
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	buttons := make([]keyboard.InlineBtn, 0, len(dates))
	for _, d := range dates {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s (%d)", d, len(byDate[d])),
			Unique: cbAccDate,
			Data:   code + "|" + d,
		})
	}
	return keyboard.InlineButtonsNPerRow(buttons, 2)
}

func accountListKeyboard(accounts []model.Account) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(accounts))
	for _, a := range accounts {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   a.PhoneNumber,
			Unique: cbAccView,
			Data:   fmt.Sprintf("%d", a.ID),
		})
	}
	return keyboard.InlineButtons(buttons)
}

func accountActionsKeyboard(accountID int64) *tele.ReplyMarkup {
	id := fmt.Sprintf("%d", accountID)
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "📤 Session", Unique: cbAccExport, Data: id},
			{Text: "📦 Archive", Unique: cbAccArchive, Data: id},
		},
		[]keyboard.InlineBtn{
			{Text: "🔌 Proxy", Unique: cbAccProxy, Data: id},
			{Text: "🗑 Delete", Unique: cbAccDelete, Data: id},
		},
	)
}

func deleteConfirmKeyboard(accountID int64) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "⚠️ Yes, delete", Unique: cbAccDeleteOK, Data: fmt.Sprintf("%d", accountID)},
		{Text: "↩️ Keep it", Unique: cbAccView, Data: fmt.Sprintf("%d", accountID)},
	})
}

// exportSelection narrows which accounts an archive covers. The zero value
// means everything.
type exportSelection struct {
	AccountID int64 // one explicit account
	Limit     int   // newest-first cap
}

func (s exportSelection) encode() string {
	if s.AccountID != 0 {
		return fmt.Sprintf("id|%d", s.AccountID)
	}
	return fmt.Sprintf("n|%d", s.Limit)
}

func parseExportSelection(s string) (exportSelection, error) {
	kind, val, ok := strings.Cut(s, "|")
	if !ok {
		return exportSelection{}, fmt.Errorf("bad selection %q", s)
	}
	switch kind {
	case "id":
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil || id <= 0 {
			return exportSelection{}, fmt.Errorf("bad account id %q", val)
		}
		return exportSelection{AccountID: id}, nil
	case "n":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return exportSelection{}, fmt.Errorf("bad count %q", val)
		}
		return exportSelection{Limit: n}, nil
	}
	return exportSelection{}, fmt.Errorf("bad selection kind %q", kind)
}

// exportScopeKeyboard offers how many accounts to bundle, newest first.
func exportScopeKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "Everything", Unique: cbExportScope, Data: "0"},
		{Text: "Last 5", Unique: cbExportScope, Data: "5"},
		{Text: "Last 10", Unique: cbExportScope, Data: "10"},
		{Text: "Last 25", Unique: cbExportScope, Data: "25"},
	}, 2)
}

func exportFormatKeyboard(sel exportSelection) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "Telethon (.session)", Unique: cbExportFormat, Data: "telethon|" + sel.encode()},
		{Text: "Pyrogram (dir + json)", Unique: cbExportFormat, Data: "pyrogram|" + sel.encode()},
	})
}

func proxyListKeyboard(proxies []model.Proxy) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(proxies)+1)
	for _, p := range proxies {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("🗑 %s:%d", p.Host, p.Port),
			Unique: cbProxyDelete,
			Data:   fmt.Sprintf("%d", p.ID),
		})
	}
	buttons = append(buttons, keyboard.InlineBtn{
		Text:   "➕ Add proxy",
		Unique: cbProxyAdd,
		Data:   "new",
	})
	return keyboard.InlineButtons(buttons)
}

// proxyAssignKeyboard offers the user's proxies for one account, plus a
// direct-connection option.
func proxyAssignKeyboard(accountID int64, proxies []model.Proxy) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(proxies)+1)
	for _, p := range proxies {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s:%d", p.Host, p.Port),
			Unique: cbProxyAssign,
			Data:   fmt.Sprintf("%d|%d", accountID, p.ID),
		})
	}
	buttons = append(buttons, keyboard.InlineBtn{
		Text:   "🚫 No proxy",
		Unique: cbProxyAssign,
		Data:   fmt.Sprintf("%d|0", accountID),
	})
	return keyboard.InlineButtons(buttons)
}
