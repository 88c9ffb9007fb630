package onboarding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

type scriptedHandshake struct {
	needPassword bool
	codeErr      error
	passwordErr  error
	payload      []byte
	closed       bool
}

func (h *scriptedHandshake) Start(context.Context, string) error { return nil }

func (h *scriptedHandshake) SubmitCode(context.Context, string) (CodeResult, error) {
	if h.codeErr != nil {
		return CodeResult{}, h.codeErr
	}
	if h.needPassword {
		return CodeResult{NeedPassword: true}, nil
	}
	return CodeResult{Session: h.payload}, nil
}

func (h *scriptedHandshake) SubmitPassword(context.Context, string) ([]byte, error) {
	if h.passwordErr != nil {
		return nil, h.passwordErr
	}
	return h.payload, nil
}

func (h *scriptedHandshake) Close(context.Context) error {
	h.closed = true
	return nil
}

type memAccounts struct {
	inserted  []*model.Account
	insertErr error
	nextID    int64
}

func (m *memAccounts) Insert(_ context.Context, a *model.Account) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.nextID++
	cp := *a
	cp.ID = m.nextID
	m.inserted = append(m.inserted, &cp)
	return m.nextID, nil
}

func (m *memAccounts) Get(context.Context, int64, int64) (*model.Account, error) {
	return nil, errs.ErrNotOwner
}
func (m *memAccounts) ListByUser(context.Context, int64, repository.AccountFilter) ([]model.Account, error) {
	return nil, nil
}
func (m *memAccounts) ListByIDs(context.Context, int64, []int64) ([]model.Account, error) {
	return nil, nil
}
func (m *memAccounts) GroupByCountryThenDate(context.Context, int64) (repository.Grouped, error) {
	return nil, nil
}
func (m *memAccounts) Delete(context.Context, int64, int64) error { return errs.ErrNotOwner }
func (m *memAccounts) Statistics(context.Context, int64) (*model.Stats, error) {
	return &model.Stats{}, nil
}
func (m *memAccounts) AssignProxy(context.Context, int64, int64, int64) error {
	return errs.ErrNotOwner
}

type memStore struct {
	saved   map[string][]byte
	removed []string
	saveErr error
}

func newMemStore() *memStore { return &memStore{saved: map[string][]byte{}} }

func (s *memStore) Save(phone string, data []byte) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	name := fmt.Sprintf("%s.session", phone)
	s.saved[name] = data
	return name, nil
}

func (s *memStore) Remove(name string) error {
	delete(s.saved, name)
	s.removed = append(s.removed, name)
	return nil
}

func newTestMachine(hs *scriptedHandshake, accounts *memAccounts, store *memStore) *Machine {
	factory := func(context.Context) (Handshake, error) { return hs, nil }
	return NewMachine(factory, accounts, store, Options{})
}

var testKey = Key{UserID: 100, ChatID: 100, TelegramID: 900}

func TestOnboardingHappyPath(t *testing.T) {
	hs := &scriptedHandshake{payload: []byte("session-bytes")}
	accounts := &memAccounts{}
	store := newMemStore()
	m := newTestMachine(hs, accounts, store)
	ctx := context.Background()

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	res, err := m.SubmitPhone(ctx, testKey, "+31612345678")
	if err != nil || res.Next != StageAwaitingCode {
		t.Fatalf("submit phone: res=%+v err=%v", res, err)
	}
	res, err = m.SubmitCode(ctx, testKey, "12345")
	if err != nil {
		t.Fatalf("submit code: %v", err)
	}
	if res.Next != StageCompleted || res.Account == nil {
		t.Fatalf("not completed: %+v", res)
	}
	if res.Account.PhoneNumber != "+31612345678" {
		t.Fatalf("phone = %q", res.Account.PhoneNumber)
	}
	if !res.Account.CountryCode.Valid || res.Account.CountryCode.String != "NL" {
		t.Fatalf("country = %+v", res.Account.CountryCode)
	}
	if len(accounts.inserted) != 1 {
		t.Fatalf("inserted = %d", len(accounts.inserted))
	}
	if _, ok := store.saved[res.Account.SessionFile]; !ok {
		t.Fatalf("artifact not stored: %q", res.Account.SessionFile)
	}
	if !hs.closed {
		t.Fatal("handshake not released")
	}
	if _, active := m.Active(testKey); active {
		t.Fatal("conversation still active after completion")
	}
}

func TestOnboardingPasswordPath(t *testing.T) {
	hs := &scriptedHandshake{needPassword: true, payload: []byte("blob")}
	accounts := &memAccounts{}
	m := newTestMachine(hs, accounts, newMemStore())
	ctx := context.Background()

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.SubmitPhone(ctx, testKey, "+31612345678"); err != nil {
		t.Fatalf("submit phone: %v", err)
	}
	res, err := m.SubmitCode(ctx, testKey, "12345")
	if err != nil || res.Next != StageAwaitingPassword {
		t.Fatalf("submit code: res=%+v err=%v", res, err)
	}
	res, err = m.SubmitPassword(ctx, testKey, "hunter2")
	if err != nil || res.Next != StageCompleted {
		t.Fatalf("submit password: res=%+v err=%v", res, err)
	}
	if len(accounts.inserted) != 1 {
		t.Fatalf("inserted = %d", len(accounts.inserted))
	}
}

func TestOnboardingBeginTwice(t *testing.T) {
	m := newTestMachine(&scriptedHandshake{}, &memAccounts{}, newMemStore())
	ctx := context.Background()

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := m.Begin(ctx, testKey); !errors.Is(err, errs.ErrOnboardingInProgress) {
		t.Fatalf("second begin: got %v, want ErrOnboardingInProgress", err)
	}
	// A different key is unaffected.
	if err := m.Begin(ctx, Key{UserID: 200, ChatID: 200}); err != nil {
		t.Fatalf("other key begin: %v", err)
	}
}

func TestOnboardingPhoneRetryCap(t *testing.T) {
	m := newTestMachine(&scriptedHandshake{}, &memAccounts{}, newMemStore())
	ctx := context.Background()

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < 2; i++ {
		res, err := m.SubmitPhone(ctx, testKey, "garbage")
		if !errors.Is(err, errs.ErrInvalidPhoneFormat) {
			t.Fatalf("attempt %d: got %v", i+1, err)
		}
		if res.Next != StageAwaitingPhone {
			t.Fatalf("attempt %d left stage %v", i+1, res.Next)
		}
	}
	res, err := m.SubmitPhone(ctx, testKey, "garbage")
	if !errors.Is(err, errs.ErrRetriesExhausted) {
		t.Fatalf("third attempt: got %v, want ErrRetriesExhausted", err)
	}
	if res.Next != StageFailed {
		t.Fatalf("third attempt stage = %v", res.Next)
	}
	if _, active := m.Active(testKey); active {
		t.Fatal("failed conversation still active")
	}
	// The key is free for a fresh attempt.
	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin after failure: %v", err)
	}
}

func TestOnboardingRetryCounterResetsPerStage(t *testing.T) {
	hs := &scriptedHandshake{codeErr: errs.ErrInvalidCode}
	m := newTestMachine(hs, &memAccounts{}, newMemStore())
	ctx := context.Background()

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Two failed phone attempts, then success: the code stage still gets a
	// full budget of three.
	for i := 0; i < 2; i++ {
		if _, err := m.SubmitPhone(ctx, testKey, "bad"); !errors.Is(err, errs.ErrInvalidPhoneFormat) {
			t.Fatalf("phone miss %d: %v", i+1, err)
		}
	}
	if _, err := m.SubmitPhone(ctx, testKey, "+31612345678"); err != nil {
		t.Fatalf("phone ok: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.SubmitCode(ctx, testKey, "wrong"); !errors.Is(err, errs.ErrInvalidCode) {
			t.Fatalf("code miss %d: %v", i+1, err)
		}
	}
	if _, err := m.SubmitCode(ctx, testKey, "wrong"); !errors.Is(err, errs.ErrRetriesExhausted) {
		t.Fatalf("code cap: got %v, want ErrRetriesExhausted", err)
	}
	if !hs.closed {
		t.Fatal("handshake not released on failure")
	}
}

func TestOnboardingExpiredCodeIsTerminal(t *testing.T) {
	hs := &scriptedHandshake{codeErr: errs.ErrCodeExpired}
	m := newTestMachine(hs, &memAccounts{}, newMemStore())
	ctx := context.Background()

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.SubmitPhone(ctx, testKey, "+31612345678"); err != nil {
		t.Fatalf("submit phone: %v", err)
	}
	res, err := m.SubmitCode(ctx, testKey, "12345")
	if !errors.Is(err, errs.ErrCodeExpired) || res.Next != StageFailed {
		t.Fatalf("expired code: res=%+v err=%v", res, err)
	}
	if _, active := m.Active(testKey); active {
		t.Fatal("expired conversation still active")
	}
}

func TestOnboardingCancelReleasesHandshake(t *testing.T) {
	hs := &scriptedHandshake{}
	m := newTestMachine(hs, &memAccounts{}, newMemStore())
	ctx := context.Background()

	if err := m.Cancel(ctx, testKey); !errors.Is(err, errs.ErrNoOnboarding) {
		t.Fatalf("cancel without session: %v", err)
	}

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.SubmitPhone(ctx, testKey, "+31612345678"); err != nil {
		t.Fatalf("submit phone: %v", err)
	}
	if err := m.Cancel(ctx, testKey); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !hs.closed {
		t.Fatal("handshake not released on cancel")
	}
	if _, err := m.SubmitCode(ctx, testKey, "12345"); !errors.Is(err, errs.ErrNoOnboarding) {
		t.Fatalf("input after cancel: %v", err)
	}
}

func TestOnboardingIdleTimeout(t *testing.T) {
	hs := &scriptedHandshake{}
	m := newTestMachine(hs, &memAccounts{}, newMemStore())
	ctx := context.Background()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	var expired []Key
	m.OnExpire = func(k Key) { expired = append(expired, k) }

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.SubmitPhone(ctx, testKey, "+31612345678"); err != nil {
		t.Fatalf("submit phone: %v", err)
	}

	// Inside the idle window nothing expires.
	now = now.Add(5 * time.Minute)
	m.SweepIdle(ctx)
	if len(expired) != 0 {
		t.Fatalf("premature expiry: %v", expired)
	}

	now = now.Add(6 * time.Minute)
	m.SweepIdle(ctx)
	if len(expired) != 1 || expired[0] != testKey {
		t.Fatalf("expiry = %v", expired)
	}
	if !hs.closed {
		t.Fatal("handshake not released on timeout")
	}
	if _, active := m.Active(testKey); active {
		t.Fatal("timed-out conversation still active")
	}
}

func TestOnboardingDuplicatePhoneAtCompletion(t *testing.T) {
	hs := &scriptedHandshake{payload: []byte("blob")}
	accounts := &memAccounts{insertErr: errs.ErrDuplicatePhone}
	store := newMemStore()
	m := newTestMachine(hs, accounts, store)
	ctx := context.Background()

	if err := m.Begin(ctx, testKey); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.SubmitPhone(ctx, testKey, "+31612345678"); err != nil {
		t.Fatalf("submit phone: %v", err)
	}
	res, err := m.SubmitCode(ctx, testKey, "12345")
	if !errors.Is(err, errs.ErrDuplicatePhone) || res.Next != StageFailed {
		t.Fatalf("duplicate completion: res=%+v err=%v", res, err)
	}
	// The artifact written for the failed insert is cleaned up.
	if len(store.removed) != 1 {
		t.Fatalf("artifact not removed: %v", store.removed)
	}
}
