package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/state"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/access"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/exporter"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/service"
)

// recordingAccountRepo counts every query so tests can prove that denied
// requests never reach storage, and records listing arguments so tests can
// prove the export selection reaches the repository.
type recordingAccountRepo struct {
	queries    int
	accounts   []model.Account
	lastFilter repository.AccountFilter
	lastIDs    []int64
}

func (r *recordingAccountRepo) Insert(context.Context, *model.Account) (int64, error) {
	r.queries++
	return 0, nil
}

func (r *recordingAccountRepo) Get(context.Context, int64, int64) (*model.Account, error) {
	r.queries++
	return nil, errs.ErrNotOwner
}

func (r *recordingAccountRepo) ListByUser(_ context.Context, _ int64, f repository.AccountFilter) ([]model.Account, error) {
	r.queries++
	r.lastFilter = f
	return r.accounts, nil
}

func (r *recordingAccountRepo) ListByIDs(_ context.Context, _ int64, ids []int64) ([]model.Account, error) {
	r.queries++
	r.lastIDs = ids
	return r.accounts, nil
}

func (r *recordingAccountRepo) GroupByCountryThenDate(context.Context, int64) (repository.Grouped, error) {
	r.queries++
	return repository.Grouped{}, nil
}

func (r *recordingAccountRepo) Delete(context.Context, int64, int64) error {
	r.queries++
	return nil
}

func (r *recordingAccountRepo) Statistics(context.Context, int64) (*model.Stats, error) {
	r.queries++
	return &model.Stats{PerCountry: map[string]int{}, PerDate: map[string]int{}}, nil
}

func (r *recordingAccountRepo) AssignProxy(context.Context, int64, int64, int64) error {
	r.queries++
	return nil
}

type stubUserRepo struct {
	user model.User
}

func (s *stubUserRepo) GetOrCreate(context.Context, int64, string, string, string) (*model.User, error) {
	u := s.user
	return &u, nil
}

func (s *stubUserRepo) GetByTelegramID(context.Context, int64) (*model.User, error) {
	u := s.user
	return &u, nil
}

func (s *stubUserRepo) SetWhitelisted(context.Context, int64, bool) error { return nil }
func (s *stubUserRepo) SetAdmin(context.Context, int64, bool) error       { return nil }

// testCtx implements the slice of tele.Context the handlers touch. The
// embedded interface panics for anything else, which is exactly what a test
// should do for an unexpected call.
type testCtx struct {
	tele.Context
	sender *tele.User
	chat   *tele.Chat
	text   string
	cb     *tele.Callback
	store  map[string]any
	sent   []string
}

func newTestCtx(userID int64) *testCtx {
	return &testCtx{
		sender: &tele.User{ID: userID, Username: "tester"},
		chat:   &tele.Chat{ID: userID},
		store:  map[string]any{},
	}
}

func (c *testCtx) Sender() *tele.User   { return c.sender }
func (c *testCtx) Chat() *tele.Chat     { return c.chat }
func (c *testCtx) Text() string         { return c.text }
func (c *testCtx) Update() tele.Update  { return tele.Update{} }
func (c *testCtx) Get(key string) any   { return c.store[key] }
func (c *testCtx) Set(key string, v any) { c.store[key] = v }

func (c *testCtx) Callback() *tele.Callback { return c.cb }

func (c *testCtx) Send(what any, _ ...any) error {
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

func (c *testCtx) EditOrSend(what any, opts ...any) error { return c.Send(what, opts...) }

func (c *testCtx) lastSent(t *testing.T) string {
	t.Helper()
	if len(c.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return c.sent[len(c.sent)-1]
}

func newHandlers(repo *recordingAccountRepo, users *stubUserRepo, enforce bool) *Handlers {
	return &Handlers{
		Users:    service.NewUsers(users),
		Accounts: service.NewAccounts(repo, nil),
		Gate:     access.NewGate(users, enforce),
		FSM:      state.NewMemoryManager(),
	}
}

func TestDeniedRequestNeverReachesStorage(t *testing.T) {
	repo := &recordingAccountRepo{}
	users := &stubUserRepo{user: model.User{ID: 7, TelegramID: 7}}
	h := newHandlers(repo, users, true)

	c := newTestCtx(7)
	if err := h.cmdAccounts(c); err != nil {
		t.Fatalf("cmdAccounts: %v", err)
	}
	if repo.queries != 0 {
		t.Fatalf("denied request hit storage %d time(s)", repo.queries)
	}
	if got := c.lastSent(t); !strings.Contains(got, "not whitelisted") {
		t.Fatalf("reply = %q", got)
	}
}

func TestWhitelistedRequestReachesStorage(t *testing.T) {
	repo := &recordingAccountRepo{}
	users := &stubUserRepo{user: model.User{ID: 7, TelegramID: 7, IsWhitelisted: true}}
	h := newHandlers(repo, users, true)

	c := newTestCtx(7)
	if err := h.cmdStats(c); err != nil {
		t.Fatalf("cmdStats: %v", err)
	}
	if repo.queries != 1 {
		t.Fatalf("queries = %d, want 1", repo.queries)
	}
}

func TestAdminCommandRequiresAdminFlag(t *testing.T) {
	repo := &recordingAccountRepo{}
	users := &stubUserRepo{user: model.User{ID: 7, TelegramID: 7, IsWhitelisted: true}}
	h := newHandlers(repo, users, true)

	c := newTestCtx(7)
	c.text = "/whitelist_add 999"
	if err := h.flipWhitelist(c, access.ActionWhitelistAdd); err != nil {
		t.Fatalf("flipWhitelist: %v", err)
	}
	if got := c.lastSent(t); !strings.Contains(got, "Administrators only") {
		t.Fatalf("reply = %q", got)
	}
}

// stubArtifacts serves canned session payloads to the exporter.
type stubArtifacts struct {
	data map[string][]byte
}

func (s *stubArtifacts) Read(name string) ([]byte, error) {
	d, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("no artifact %q", name)
	}
	return d, nil
}

// recordingSink captures the archive copy the handler persists.
type recordingSink struct {
	name string
	data []byte
}

func (s *recordingSink) Save(name string, data []byte) (string, error) {
	s.name = name
	s.data = data
	return name, nil
}

func exportHandlers(repo *recordingAccountRepo, sink *recordingSink) *Handlers {
	users := &stubUserRepo{user: model.User{ID: 7, TelegramID: 7, IsWhitelisted: true}}
	reader := &stubArtifacts{data: map[string][]byte{"a.session": []byte("blob")}}
	return &Handlers{
		Users:    service.NewUsers(users),
		Accounts: service.NewAccounts(repo, nil),
		Gate:     access.NewGate(users, true),
		Exporter: exporter.New(reader, exporter.Options{}),
		Archives: sink,
		FSM:      state.NewMemoryManager(),
	}
}

func testAccount(id int64) model.Account {
	return model.Account{
		ID:          id,
		UserID:      7,
		PhoneNumber: "+31612345678",
		SessionFile: "a.session",
		AddedDate:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExportSelectionParsing(t *testing.T) {
	sel, err := parseExportSelection("n|5")
	if err != nil || sel.Limit != 5 || sel.AccountID != 0 {
		t.Fatalf("count selection = %+v, err %v", sel, err)
	}
	sel, err = parseExportSelection("id|42")
	if err != nil || sel.AccountID != 42 {
		t.Fatalf("id selection = %+v, err %v", sel, err)
	}
	for _, bad := range []string{"", "n", "n|x", "n|-1", "id|0", "id|-3", "k|1"} {
		if _, err := parseExportSelection(bad); err == nil {
			t.Fatalf("parse(%q) accepted", bad)
		}
	}
	if got := (exportSelection{Limit: 10}).encode(); got != "n|10" {
		t.Fatalf("encode count = %q", got)
	}
	if got := (exportSelection{AccountID: 3}).encode(); got != "id|3" {
		t.Fatalf("encode id = %q", got)
	}
}

func TestExportCountSelectionReachesStorage(t *testing.T) {
	repo := &recordingAccountRepo{accounts: []model.Account{testAccount(1)}}
	sink := &recordingSink{}
	h := exportHandlers(repo, sink)

	c := newTestCtx(7)
	c.cb = &tele.Callback{Data: "exp_fmt|telethon|n|5"}
	if err := h.cbExportFormat(c); err != nil {
		t.Fatalf("cbExportFormat: %v", err)
	}
	if repo.lastFilter.Limit != 5 {
		t.Fatalf("limit = %d, want 5", repo.lastFilter.Limit)
	}
	if sink.name != "u7_accounts_telethon.zip" {
		t.Fatalf("archive copy name = %q", sink.name)
	}
	if len(sink.data) == 0 {
		t.Fatal("archive copy is empty")
	}
}

func TestExportSingleAccountUsesIDLookup(t *testing.T) {
	repo := &recordingAccountRepo{accounts: []model.Account{testAccount(42)}}
	sink := &recordingSink{}
	h := exportHandlers(repo, sink)

	c := newTestCtx(7)
	c.cb = &tele.Callback{Data: "exp_fmt|pyrogram|id|42"}
	if err := h.cbExportFormat(c); err != nil {
		t.Fatalf("cbExportFormat: %v", err)
	}
	if len(repo.lastIDs) != 1 || repo.lastIDs[0] != 42 {
		t.Fatalf("id lookup = %v, want [42]", repo.lastIDs)
	}
	if sink.name != "u7_accounts_pyrogram.zip" {
		t.Fatalf("archive copy name = %q", sink.name)
	}
}

func TestProxyShorthandParsing(t *testing.T) {
	in, err := parseProxyText("relay.example:1080")
	if err != nil {
		t.Fatalf("bare shorthand: %v", err)
	}
	if in.Host != "relay.example" || in.Port != 1080 {
		t.Fatalf("parsed = %+v", in)
	}

	in, err = parseProxyText("relay.example:1080:alice:secret")
	if err != nil {
		t.Fatalf("credential shorthand: %v", err)
	}
	if in.Username != "alice" || in.Password != "secret" {
		t.Fatalf("parsed = %+v", in)
	}

	if _, err := parseProxyText("relay.example"); err == nil {
		t.Fatal("expected error for missing port")
	}
}
