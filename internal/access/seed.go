package access

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/bootstrap"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

// WhitelistSeeder loads pre-approved Telegram ids at bootstrap: admin ids
// from configuration and optional whitelist ids from a flat file, one id per
// line with # comments. Seeding is idempotent.
type WhitelistSeeder struct {
	users    repository.UserRepository
	file     string
	adminIDs []int64
}

// NewWhitelistSeeder constructs the seeder. An empty file path skips the
// file step.
func NewWhitelistSeeder(users repository.UserRepository, file string, adminIDs []int64) *WhitelistSeeder {
	return &WhitelistSeeder{users: users, file: file, adminIDs: adminIDs}
}

var _ bootstrap.Seeder = (*WhitelistSeeder)(nil)

// Seed applies admin flags and whitelist entries.
func (s *WhitelistSeeder) Seed(ctx context.Context, _ bootstrap.Storage) error {
	for _, id := range s.adminIDs {
		if err := s.users.SetAdmin(ctx, id, true); err != nil {
			return fmt.Errorf("seed admin %d: %w", id, err)
		}
	}

	if s.file == "" {
		return nil
	}
	ids, err := readIDFile(s.file)
	if err != nil {
		return fmt.Errorf("seed whitelist: %w", err)
	}
	for _, id := range ids {
		if err := s.users.SetWhitelisted(ctx, id, true); err != nil {
			return fmt.Errorf("seed whitelist %d: %w", id, err)
		}
	}
	logger.Info(ctx, "db.seed", "whitelist.seeded",
		slog.Int("admins", len(s.adminIDs)),
		slog.Int("whitelisted", len(ids)),
	)
	return nil
}

func readIDFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var ids []int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}
