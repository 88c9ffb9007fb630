package access

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
)

type fakeUserRepo struct {
	users map[int64]*model.User
	calls []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*model.User{}}
}

func (f *fakeUserRepo) GetOrCreate(_ context.Context, telegramID int64, username, firstName, lastName string) (*model.User, error) {
	f.calls = append(f.calls, "GetOrCreate")
	if u, ok := f.users[telegramID]; ok {
		return u, nil
	}
	u := &model.User{ID: telegramID, TelegramID: telegramID}
	f.users[telegramID] = u
	return u, nil
}

func (f *fakeUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	f.calls = append(f.calls, "GetByTelegramID")
	u, ok := f.users[telegramID]
	if !ok {
		return nil, errs.ErrNotOwner
	}
	return u, nil
}

func (f *fakeUserRepo) SetWhitelisted(_ context.Context, telegramID int64, whitelisted bool) error {
	f.calls = append(f.calls, "SetWhitelisted")
	u, ok := f.users[telegramID]
	if !ok {
		u = &model.User{ID: telegramID, TelegramID: telegramID}
		f.users[telegramID] = u
	}
	u.IsWhitelisted = whitelisted
	return nil
}

func (f *fakeUserRepo) SetAdmin(_ context.Context, telegramID int64, admin bool) error {
	f.calls = append(f.calls, "SetAdmin")
	u, ok := f.users[telegramID]
	if !ok {
		u = &model.User{ID: telegramID, TelegramID: telegramID}
		f.users[telegramID] = u
	}
	u.IsAdmin = admin
	return nil
}

func addUser(repo *fakeUserRepo, id int64, whitelisted, admin bool) {
	repo.users[id] = &model.User{
		ID:            id,
		TelegramID:    id,
		IsWhitelisted: whitelisted,
		IsAdmin:       admin,
	}
}

func TestGatePolicyMatrix(t *testing.T) {
	repo := newFakeUserRepo()
	addUser(repo, 1, false, false) // plain
	addUser(repo, 2, true, false)  // whitelisted
	addUser(repo, 3, false, true)  // admin
	ctx := context.Background()

	cases := []struct {
		name    string
		enabled bool
		userID  int64
		action  Action
		wantErr error
	}{
		{"disabled allows plain user", false, 1, ActionListAccounts, nil},
		{"enabled denies plain user", true, 1, ActionListAccounts, errs.ErrAccessDenied},
		{"enabled allows whitelisted", true, 2, ActionAddAccount, nil},
		{"enabled allows admin", true, 3, ActionExportAccounts, nil},
		{"admin action denies whitelisted", true, 2, ActionWhitelistAdd, errs.ErrAdminOnly},
		{"admin action denies plain even when disabled", false, 1, ActionWhitelistRemove, errs.ErrAdminOnly},
		{"admin action allows admin", true, 3, ActionWhitelistAdd, nil},
	}
	for _, tc := range cases {
		gate := NewGate(repo, tc.enabled)
		_, err := gate.Authorize(ctx, tc.userID, tc.action)
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestGateDeniesUnknownIdentity(t *testing.T) {
	gate := NewGate(newFakeUserRepo(), true)
	if _, err := gate.Authorize(context.Background(), 999, ActionListAccounts); !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("unknown identity: got %v, want ErrAccessDenied", err)
	}
}

func TestGateApproveCreatesRow(t *testing.T) {
	repo := newFakeUserRepo()
	gate := NewGate(repo, true)
	ctx := context.Background()

	// Approving before first contact must work.
	if err := gate.Approve(ctx, 555); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := gate.Authorize(ctx, 555, ActionListAccounts); err != nil {
		t.Fatalf("approved user denied: %v", err)
	}
	if err := gate.Revoke(ctx, 555); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := gate.Authorize(ctx, 555, ActionListAccounts); !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("revoked user allowed: %v", err)
	}
}

func TestWhitelistSeeder(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "whitelist.txt")
	content := "# approved operators\n1001\n\n1002\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	repo := newFakeUserRepo()
	seeder := NewWhitelistSeeder(repo, file, []int64{42})
	if err := seeder.Seed(context.Background(), nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if u := repo.users[42]; u == nil || !u.IsAdmin {
		t.Fatalf("admin not seeded: %+v", repo.users[42])
	}
	for _, id := range []int64{1001, 1002} {
		if u := repo.users[id]; u == nil || !u.IsWhitelisted {
			t.Fatalf("id %d not whitelisted: %+v", id, repo.users[id])
		}
	}
}

func TestWhitelistSeederMissingFileIsNoop(t *testing.T) {
	repo := newFakeUserRepo()
	seeder := NewWhitelistSeeder(repo, filepath.Join(t.TempDir(), "absent.txt"), nil)
	if err := seeder.Seed(context.Background(), nil); err != nil {
		t.Fatalf("seed with missing file: %v", err)
	}
	if len(repo.users) != 0 {
		t.Fatalf("unexpected users seeded: %v", repo.users)
	}
}
