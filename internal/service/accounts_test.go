package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

type fakeAccountRepo struct {
	accounts map[int64]*model.Account
	nextID   int64
	deleted  []int64
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[int64]*model.Account{}, nextID: 1}
}

func (f *fakeAccountRepo) Insert(_ context.Context, a *model.Account) (int64, error) {
	for _, existing := range f.accounts {
		if existing.UserID == a.UserID && existing.PhoneNumber == a.PhoneNumber {
			return 0, errs.ErrDuplicatePhone
		}
	}
	id := f.nextID
	f.nextID++
	cp := *a
	cp.ID = id
	f.accounts[id] = &cp
	return id, nil
}

func (f *fakeAccountRepo) Get(_ context.Context, ownerID, accountID int64) (*model.Account, error) {
	a, ok := f.accounts[accountID]
	if !ok || a.UserID != ownerID {
		return nil, errs.ErrNotOwner
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountRepo) ListByUser(_ context.Context, ownerID int64, filter repository.AccountFilter) ([]model.Account, error) {
	var out []model.Account
	for _, a := range f.accounts {
		if a.UserID != ownerID {
			continue
		}
		if filter.CountryCode != "" && (!a.CountryCode.Valid || a.CountryCode.String != filter.CountryCode) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAccountRepo) ListByIDs(_ context.Context, ownerID int64, ids []int64) ([]model.Account, error) {
	var out []model.Account
	for _, id := range ids {
		if a, ok := f.accounts[id]; ok && a.UserID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) GroupByCountryThenDate(ctx context.Context, ownerID int64) (repository.Grouped, error) {
	accounts, _ := f.ListByUser(ctx, ownerID, repository.AccountFilter{})
	grouped := make(repository.Grouped)
	for _, a := range accounts {
		code := ""
		if a.CountryCode.Valid {
			code = a.CountryCode.String
		}
		if grouped[code] == nil {
			grouped[code] = map[string][]model.Account{}
		}
		grouped[code][a.DateKey()] = append(grouped[code][a.DateKey()], a)
	}
	return grouped, nil
}

func (f *fakeAccountRepo) Delete(_ context.Context, ownerID, accountID int64) error {
	a, ok := f.accounts[accountID]
	if !ok || a.UserID != ownerID {
		return errs.ErrNotOwner
	}
	delete(f.accounts, accountID)
	f.deleted = append(f.deleted, accountID)
	return nil
}

func (f *fakeAccountRepo) Statistics(ctx context.Context, ownerID int64) (*model.Stats, error) {
	accounts, _ := f.ListByUser(ctx, ownerID, repository.AccountFilter{})
	stats := &model.Stats{PerCountry: map[string]int{}, PerDate: map[string]int{}}
	stats.TotalAccounts = len(accounts)
	for _, a := range accounts {
		code := ""
		if a.CountryCode.Valid {
			code = a.CountryCode.String
		}
		stats.PerCountry[code]++
		stats.PerDate[a.DateKey()]++
	}
	return stats, nil
}

func (f *fakeAccountRepo) AssignProxy(_ context.Context, ownerID, accountID, proxyID int64) error {
	a, ok := f.accounts[accountID]
	if !ok || a.UserID != ownerID {
		return errs.ErrNotOwner
	}
	if proxyID == 0 {
		a.ProxyID.Valid = false
		a.ProxyID.Int64 = 0
		return nil
	}
	a.ProxyID.Valid = true
	a.ProxyID.Int64 = proxyID
	return nil
}

type fakeStore struct {
	files   map[string][]byte
	removed []string
}

func newFakeStore() *fakeStore { return &fakeStore{files: map[string][]byte{}} }

func (f *fakeStore) Read(name string) ([]byte, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, errors.New("missing artifact")
	}
	return data, nil
}

func (f *fakeStore) Remove(name string) error {
	delete(f.files, name)
	f.removed = append(f.removed, name)
	return nil
}

func seedAccount(t *testing.T, repo *fakeAccountRepo, ownerID int64, phone, file string) int64 {
	t.Helper()
	id, err := repo.Insert(context.Background(), &model.Account{
		UserID:      ownerID,
		PhoneNumber: phone,
		AddedDate:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		SessionFile: file,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func TestAccountsOwnershipIsolation(t *testing.T) {
	repo := newFakeAccountRepo()
	store := newFakeStore()
	svc := NewAccounts(repo, store)
	ctx := context.Background()

	id := seedAccount(t, repo, 100, "+31612345678", "a.session")
	seedAccount(t, repo, 200, "+31612345679", "b.session")

	if _, err := svc.Get(ctx, 200, id); !errors.Is(err, errs.ErrNotOwner) {
		t.Fatalf("cross-owner get: got %v, want ErrNotOwner", err)
	}
	if err := svc.Delete(ctx, 200, id); !errors.Is(err, errs.ErrNotOwner) {
		t.Fatalf("cross-owner delete: got %v, want ErrNotOwner", err)
	}
	if _, err := svc.Get(ctx, 100, id); err != nil {
		t.Fatalf("owner get: %v", err)
	}

	list, err := svc.List(ctx, 100, repository.AccountFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].PhoneNumber != "+31612345678" {
		t.Fatalf("list leaked rows across owners: %+v", list)
	}
}

func TestAccountsDeleteRemovesArtifact(t *testing.T) {
	repo := newFakeAccountRepo()
	store := newFakeStore()
	store.files["a.session"] = []byte("blob")
	svc := NewAccounts(repo, store)
	ctx := context.Background()

	id := seedAccount(t, repo, 100, "+31612345678", "a.session")

	if err := svc.Delete(ctx, 100, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.removed) != 1 || store.removed[0] != "a.session" {
		t.Fatalf("artifact not removed: %v", store.removed)
	}
	if _, err := svc.Get(ctx, 100, id); !errors.Is(err, errs.ErrNotOwner) {
		t.Fatalf("deleted account still readable: %v", err)
	}
}

func TestAccountsSessionDataChecksOwnershipFirst(t *testing.T) {
	repo := newFakeAccountRepo()
	store := newFakeStore()
	store.files["a.session"] = []byte("blob")
	svc := NewAccounts(repo, store)
	ctx := context.Background()

	id := seedAccount(t, repo, 100, "+31612345678", "a.session")

	if _, _, err := svc.SessionData(ctx, 200, id); !errors.Is(err, errs.ErrNotOwner) {
		t.Fatalf("cross-owner session read: got %v, want ErrNotOwner", err)
	}
	a, data, err := svc.SessionData(ctx, 100, id)
	if err != nil {
		t.Fatalf("owner session read: %v", err)
	}
	if a.PhoneNumber != "+31612345678" || string(data) != "blob" {
		t.Fatalf("unexpected session payload: %q %q", a.PhoneNumber, data)
	}
}

func TestAccountsDuplicateInsertConflict(t *testing.T) {
	repo := newFakeAccountRepo()
	ctx := context.Background()

	seedAccount(t, repo, 100, "+31612345678", "a.session")
	_, err := repo.Insert(ctx, &model.Account{
		UserID:      100,
		PhoneNumber: "+31612345678",
		SessionFile: "b.session",
	})
	if !errors.Is(err, errs.ErrDuplicatePhone) {
		t.Fatalf("duplicate insert: got %v, want ErrDuplicatePhone", err)
	}

	// Same phone under a different owner is not a duplicate.
	if _, err := repo.Insert(ctx, &model.Account{
		UserID:      200,
		PhoneNumber: "+31612345678",
		SessionFile: "c.session",
	}); err != nil {
		t.Fatalf("other-owner insert: %v", err)
	}
}

func TestAccountsStats(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := NewAccounts(repo, newFakeStore())
	ctx := context.Background()

	for i, phone := range []string{"+31611111111", "+31622222222", "+4915111111111"} {
		a := &model.Account{
			UserID:      100,
			PhoneNumber: phone,
			AddedDate:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
			SessionFile: "s.session",
		}
		a.CountryCode.Valid = true
		if i < 2 {
			a.CountryCode.String = "NL"
		} else {
			a.CountryCode.String = "DE"
		}
		if _, err := repo.Insert(ctx, a); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	stats, err := svc.Stats(ctx, 100)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAccounts != 3 {
		t.Fatalf("total = %d, want 3", stats.TotalAccounts)
	}
	if stats.PerCountry["NL"] != 2 || stats.PerCountry["DE"] != 1 {
		t.Fatalf("per-country = %v", stats.PerCountry)
	}
	if stats.PerDate["2026-08-30"] != 3 {
		t.Fatalf("per-date = %v", stats.PerDate)
	}
}
