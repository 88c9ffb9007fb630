// Package model defines the persistent entities of the account manager.
package model

import (
	"database/sql"
	"time"
)

// User is a bot user identified by their Telegram id. Users are created on
// first interaction and never hard-deleted; access is controlled via flags.
type User struct {
	ID            int64          `db:"id"`
	TelegramID    int64          `db:"telegram_id"`
	Username      sql.NullString `db:"username"`
	FirstName     sql.NullString `db:"first_name"`
	LastName      sql.NullString `db:"last_name"`
	IsAdmin       bool           `db:"is_admin"`
	IsWhitelisted bool           `db:"is_whitelisted"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// Account is a stored Telegram account owned by exactly one User.
// Country fields are derived from the phone number and may be null when the
// dialing prefix is unassigned.
type Account struct {
	ID          int64          `db:"id"`
	UserID      int64          `db:"user_id"`
	PhoneNumber string         `db:"phone_number"`
	CountryCode sql.NullString `db:"country_code"`
	CountryName sql.NullString `db:"country_name"`
	AddedDate   time.Time      `db:"added_date"`
	SessionFile string         `db:"session_file"`
	ProxyID     sql.NullInt64  `db:"proxy_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

// DateKey returns the account's addition date as YYYY-MM-DD in UTC.
func (a Account) DateKey() string {
	return a.AddedDate.UTC().Format("2006-01-02")
}

// Proxy is a per-user SOCKS5 relay endpoint. Accounts reference a proxy but
// do not own it; deleting a proxy clears the reference.
type Proxy struct {
	ID        int64          `db:"id"`
	UserID    int64          `db:"user_id"`
	Host      string         `db:"host"`
	Port      int            `db:"port"`
	Username  sql.NullString `db:"username"`
	Password  sql.NullString `db:"password"`
	Label     sql.NullString `db:"label"`
	CreatedAt time.Time      `db:"created_at"`
}

// Authenticated reports whether the proxy carries a credential pair.
func (p Proxy) Authenticated() bool {
	return p.Username.Valid && p.Username.String != "" && p.Password.Valid && p.Password.String != ""
}

// Stats summarizes a user's stored accounts.
type Stats struct {
	TotalAccounts int
	PerCountry    map[string]int
	PerDate       map[string]int
}
