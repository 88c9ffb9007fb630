// Package app assembles the application: storage, services, bot surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/bootstrap"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	coretelegram "github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/router"
	"github.com/pouyakhodadust-eng/telegram-account-manager/core/telegram/state"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/access"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/authbridge"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/bot"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/config"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/exporter"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/onboarding"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository/postgres"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/service"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/storage"
)

// App holds the wired application.
type App struct {
	cfg      *config.Config
	db       *sqlx.DB
	registry *coretelegram.Registry
	fsm      state.Manager
	machine  *onboarding.Machine
	users    *service.Users
}

// Bootstrap initializes infrastructure and wires all components.
func Bootstrap(cfg *config.Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	userRepo := postgres.NewUserRepo(res.DB)
	accountRepo := postgres.NewAccountRepo(res.DB)
	proxyRepo := postgres.NewProxyRepo(res.DB)

	seeder := access.NewWhitelistSeeder(userRepo, cfg.Whitelist.File, cfg.Whitelist.AdminIDs)
	if err := seeder.Seed(context.Background(), res.DB); err != nil {
		_ = res.DB.Close()
		return nil, fmt.Errorf("whitelist seed: %w", err)
	}

	files, err := storage.NewFiles(cfg.Storage.SessionsDir)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	exports, err := storage.NewExports(cfg.Storage.ExportsDir)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}

	httpClient := coretelegram.BuildHTTPClient()
	httpClient.Timeout = time.Duration(cfg.AuthBridge.TimeoutSeconds) * time.Second
	bridge := authbridge.NewClient(cfg.AuthBridge.BaseURL, httpClient)

	machine := onboarding.NewMachine(bridge.Open, accountRepo, files, onboarding.Options{
		MaxRetries:  cfg.Onboarding.MaxRetries,
		IdleTimeout: cfg.Onboarding.IdleTimeout(),
	})

	fsm := state.NewMemoryManager()
	users := service.NewUsers(userRepo)

	handlers := &bot.Handlers{
		Users:    users,
		Accounts: service.NewAccounts(accountRepo, files),
		Proxies:  service.NewProxies(proxyRepo, accountRepo),
		Gate:     access.NewGate(userRepo, cfg.Whitelist.Enabled),
		Machine:  machine,
		Exporter: exporter.New(files, exporter.Options{Manifest: cfg.Onboarding.ExportManifest}),
		Archives: exports,
		FSM:      fsm,
	}

	// A timed-out conversation also clears the FSM routing state, otherwise
	// the next text message would hit a dead state handler. The FSM is
	// keyed by the sender's Telegram id, which the machine key carries.
	machine.OnExpire = func(key onboarding.Key) {
		fsm.Clear(key.TelegramID)
	}

	reg := coretelegram.NewRegistry()
	handlers.Register(reg)

	return &App{
		cfg:      cfg,
		db:       res.DB,
		registry: reg,
		fsm:      fsm,
		machine:  machine,
		users:    users,
	}, nil
}

// TelegramRunOptions builds the bot runtime configuration.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	isAdmin := func(userID int64) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		u, err := a.users.Get(ctx, userID)
		return err == nil && u.IsAdmin
	}

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{IsAdmin: isAdmin})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.fsm, a.registry, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			a.machine.StartSweeper(ctx, time.Minute)
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			if err := a.db.Close(); err != nil {
				logger.Warn(ctx, "db", "db.close",
					slog.String("error", err.Error()),
				)
			}
			return nil
		},
	}, nil
}
