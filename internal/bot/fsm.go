package bot

import (
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/helpers"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/state"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/access"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/country"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/onboarding"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/service"
)

// FSM states routed by the text router while a conversation is active.
const (
	stateAwaitPhone    state.State = "onboarding_phone"
	stateAwaitCode     state.State = "onboarding_code"
	stateAwaitPassword state.State = "onboarding_password"
	stateAwaitProxy    state.State = "proxy_input"
)

func (h *Handlers) registerStates() {
	state.RegisterHandler(stateAwaitPhone, h.onPhoneInput)
	state.RegisterHandler(stateAwaitCode, h.onCodeInput)
	state.RegisterHandler(stateAwaitPassword, h.onPasswordInput)
	state.RegisterHandler(stateAwaitProxy, h.onProxyInput)
}

func (h *Handlers) onPhoneInput(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionAddAccount)
	if err != nil {
		h.FSM.Clear(c.Sender().ID)
		return replyError(c, err)
	}
	_, err = h.Machine.SubmitPhone(ctx, keyFor(u, c), strings.TrimSpace(c.Text()))
	switch {
	case err == nil:
		h.FSM.SetState(c.Sender().ID, stateAwaitCode)
		return tghelpers.SendMD(c, "📨 A login code was sent. Reply with it here.")
	case errors.Is(err, errs.ErrRetriesExhausted):
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, "❌ Too many invalid numbers, flow aborted. Start over with /add.")
	case errors.Is(err, errs.ErrInvalidPhoneFormat):
		return tghelpers.SendMD(c, "That does not look like an international number. Try again, e.g. `+31612345678`.")
	case errors.Is(err, errs.ErrNoOnboarding):
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, "This flow is no longer active. Start over with /add.")
	}
	h.FSM.Clear(c.Sender().ID)
	return replyError(c, err)
}

func (h *Handlers) onCodeInput(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionAddAccount)
	if err != nil {
		h.FSM.Clear(c.Sender().ID)
		return replyError(c, err)
	}
	res, err := h.Machine.SubmitCode(ctx, keyFor(u, c), strings.TrimSpace(c.Text()))
	switch {
	case err == nil && res.Next == onboarding.StageAwaitingPassword:
		h.FSM.SetState(c.Sender().ID, stateAwaitPassword)
		return tghelpers.SendMD(c, "🔐 This account has two-factor auth. Send the password.")
	case err == nil && res.Next == onboarding.StageCompleted:
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, completedText(res))
	case errors.Is(err, errs.ErrInvalidCode) && !errors.Is(err, errs.ErrRetriesExhausted):
		return tghelpers.SendMD(c, "Wrong code, try again.")
	case errors.Is(err, errs.ErrRetriesExhausted):
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, "❌ Too many wrong codes, flow aborted. Start over with /add.")
	case errors.Is(err, errs.ErrCodeExpired):
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, "⌛️ The code expired, flow aborted. Start over with /add.")
	case errors.Is(err, errs.ErrNoOnboarding):
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, "This flow is no longer active. Start over with /add.")
	}
	h.FSM.Clear(c.Sender().ID)
	return replyError(c, err)
}

func (h *Handlers) onPasswordInput(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionAddAccount)
	if err != nil {
		h.FSM.Clear(c.Sender().ID)
		return replyError(c, err)
	}
	res, err := h.Machine.SubmitPassword(ctx, keyFor(u, c), c.Text())
	switch {
	case err == nil && res.Next == onboarding.StageCompleted:
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, completedText(res))
	case errors.Is(err, errs.ErrInvalidPassword) && !errors.Is(err, errs.ErrRetriesExhausted):
		return tghelpers.SendMD(c, "Wrong password, try again.")
	case errors.Is(err, errs.ErrRetriesExhausted):
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, "❌ Too many wrong passwords, flow aborted. Start over with /add.")
	case errors.Is(err, errs.ErrNoOnboarding):
		h.FSM.Clear(c.Sender().ID)
		return tghelpers.SendMD(c, "This flow is no longer active. Start over with /add.")
	}
	h.FSM.Clear(c.Sender().ID)
	return replyError(c, err)
}

func (h *Handlers) onProxyInput(c tele.Context) error {
	ctx, u, err := h.authorize(c, access.ActionManageProxies)
	if err != nil {
		h.FSM.Clear(c.Sender().ID)
		return replyError(c, err)
	}

	in, err := parseProxyText(c.Text())
	if err != nil {
		return replyError(c, err)
	}
	p, err := h.Proxies.Add(ctx, u.ID, in)
	if err != nil {
		return replyError(c, err)
	}
	h.FSM.Clear(c.Sender().ID)
	return tghelpers.SendMD(c, "✅ Proxy stored: `"+service.Display(*p)+"`")
}

// parseProxyText accepts a socks5 URL or the colon-separated shorthand
// host:port and host:port:user:pass.
func parseProxyText(raw string) (service.ProxyInput, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "socks5://") {
		return service.ParseProxyURL(raw)
	}
	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 2:
		return service.ParseProxyURL("socks5://" + parts[0] + ":" + parts[1])
	case 4:
		return service.ParseProxyURL("socks5://" + parts[2] + ":" + parts[3] + "@" + parts[0] + ":" + parts[1])
	}
	return service.ProxyInput{}, errs.ErrInvalidProxyConfig
}

func completedText(res onboarding.Result) string {
	a := res.Account
	if a == nil {
		return "✅ Account stored."
	}
	if a.CountryCode.Valid {
		return "✅ Account `" + a.PhoneNumber + "` stored (" +
			country.FlagEmoji(a.CountryCode.String) + " " + a.CountryName.String + ")."
	}
	return "✅ Account `" + a.PhoneNumber + "` stored (country unknown)."
}
