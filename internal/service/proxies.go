package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

// ProxyInput is one proxy definition as entered by a user.
type ProxyInput struct {
	Host     string
	Port     int
	Username string
	Password string
	Label    string
}

// Proxies manages per-user relay endpoints.
type Proxies struct {
	proxies  repository.ProxyRepository
	accounts repository.AccountRepository
}

// NewProxies constructs the proxy service.
func NewProxies(proxies repository.ProxyRepository, accounts repository.AccountRepository) *Proxies {
	return &Proxies{proxies: proxies, accounts: accounts}
}

// ParseProxyURL accepts socks5://[user:pass@]host:port and returns the
// equivalent input. Only the socks5 scheme is recognized.
func ParseProxyURL(raw string) (ProxyInput, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "socks5" || u.Host == "" {
		return ProxyInput{}, errs.ErrInvalidProxyConfig
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return ProxyInput{}, errs.ErrInvalidProxyConfig
	}
	in := ProxyInput{Host: u.Hostname(), Port: port}
	if u.User != nil {
		in.Username = u.User.Username()
		in.Password, _ = u.User.Password()
	}
	return in, nil
}

// Add validates and stores a proxy definition.
func (s *Proxies) Add(ctx context.Context, ownerID int64, in ProxyInput) (*model.Proxy, error) {
	if err := validateProxy(in); err != nil {
		return nil, err
	}
	p := &model.Proxy{
		UserID:   ownerID,
		Host:     in.Host,
		Port:     in.Port,
		Username: nullable(in.Username),
		Password: nullable(in.Password),
		Label:    nullable(in.Label),
	}
	id, err := s.proxies.Insert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("add proxy: %w", err)
	}
	p.ID = id
	logger.Info(ctx, "service.proxies", "proxy.add",
		slog.Int64("user_id", ownerID),
		slog.Int64("proxy_id", id),
		slog.String("host", in.Host),
	)
	return p, nil
}

// List returns the owner's proxies.
func (s *Proxies) List(ctx context.Context, ownerID int64) ([]model.Proxy, error) {
	return s.proxies.ListByUser(ctx, ownerID)
}

// Assign links an owned account to an owned proxy; proxyID 0 clears the link.
func (s *Proxies) Assign(ctx context.Context, ownerID, accountID, proxyID int64) error {
	if proxyID != 0 {
		// Resolved up front for a precise error; the UPDATE re-checks both
		// sides so a concurrent delete cannot race an assignment in.
		if _, err := s.proxies.Get(ctx, ownerID, proxyID); err != nil {
			return err
		}
	}
	if err := s.accounts.AssignProxy(ctx, ownerID, accountID, proxyID); err != nil {
		return err
	}
	logger.Info(ctx, "service.proxies", "proxy.assign",
		slog.Int64("user_id", ownerID),
		slog.Int64("account_id", accountID),
		slog.Int64("proxy_id", proxyID),
	)
	return nil
}

// Remove deletes an owned proxy. Accounts that referenced it fall back to a
// direct connection; the schema clears the references.
func (s *Proxies) Remove(ctx context.Context, ownerID, proxyID int64) error {
	if err := s.proxies.Delete(ctx, ownerID, proxyID); err != nil {
		return err
	}
	logger.Info(ctx, "service.proxies", "proxy.remove",
		slog.Int64("user_id", ownerID),
		slog.Int64("proxy_id", proxyID),
	)
	return nil
}

// Display renders a proxy for listings with the password masked.
func Display(p model.Proxy) string {
	label := ""
	if p.Label.Valid && p.Label.String != "" {
		label = p.Label.String + " "
	}
	if p.Authenticated() {
		return fmt.Sprintf("%s%s:***@%s:%d", label, p.Username.String, p.Host, p.Port)
	}
	return fmt.Sprintf("%s%s:%d", label, p.Host, p.Port)
}

func validateProxy(in ProxyInput) error {
	if strings.TrimSpace(in.Host) == "" {
		return errs.ErrInvalidProxyConfig
	}
	if in.Port < 1 || in.Port > 65535 {
		return errs.ErrInvalidProxyConfig
	}
	// Credentials are both-or-neither; a half pair is always a typo.
	if (in.Username == "") != (in.Password == "") {
		return errs.ErrInvalidProxyConfig
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
