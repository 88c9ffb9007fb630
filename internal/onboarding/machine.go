package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/country"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/repository"
)

// Stage is the position of a conversation.
type Stage int

// Conversation stages. Completed, Cancelled and Failed are terminal; the
// machine drops the session when it reaches one.
const (
	StageAwaitingPhone Stage = iota
	StageAwaitingCode
	StageAwaitingPassword
	StageCompleted
	StageCancelled
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingPhone:
		return "awaiting_phone"
	case StageAwaitingCode:
		return "awaiting_code"
	case StageAwaitingPassword:
		return "awaiting_password"
	case StageCompleted:
		return "completed"
	case StageCancelled:
		return "cancelled"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}

// Key identifies one conversation. UserID is the internal user id the
// repositories scope by; TelegramID is the sender's platform id, carried so
// expiry callbacks can address per-sender state keyed by it.
type Key struct {
	UserID     int64
	ChatID     int64
	TelegramID int64
}

// Result is the outcome of a transition.
type Result struct {
	Next Stage
	// Account is set only when Next is StageCompleted.
	Account *model.Account
}

// SessionWriter is the slice of the file store the machine needs.
type SessionWriter interface {
	Save(phone string, data []byte) (string, error)
	Remove(name string) error
}

type session struct {
	stage     Stage
	phone     string
	retries   int
	handshake Handshake
	deadline  time.Time
	// busy marks a transition in flight so concurrent inputs for the same
	// key cannot race the handshake.
	busy bool
}

// Machine drives add-account conversations. All transitions are serialized
// per machine through one mutex; handshake calls happen outside the lock so
// a slow exchange does not stall other users' transitions.
type Machine struct {
	factory  HandshakeFactory
	accounts repository.AccountRepository
	store    SessionWriter

	maxRetries  int
	idleTimeout time.Duration
	now         func() time.Time

	// OnExpire is invoked from the sweeper when a conversation idles out.
	OnExpire func(Key)

	mu       sync.Mutex
	sessions map[Key]*session
}

// Options tune the machine.
type Options struct {
	// MaxRetries caps wrong inputs per stage. Zero means 3.
	MaxRetries int
	// IdleTimeout expires a conversation with no input. Zero means 10m.
	IdleTimeout time.Duration
}

// NewMachine constructs an onboarding machine.
func NewMachine(factory HandshakeFactory, accounts repository.AccountRepository, store SessionWriter, opts Options) *Machine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	return &Machine{
		factory:     factory,
		accounts:    accounts,
		store:       store,
		maxRetries:  opts.MaxRetries,
		idleTimeout: opts.IdleTimeout,
		now:         time.Now,
		sessions:    make(map[Key]*session),
	}
}

// Active reports the current stage of a conversation, if any.
func (m *Machine) Active(key Key) (Stage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return 0, false
	}
	return s.stage, true
}

// Begin opens a conversation. A second Begin for the same key fails until
// the first one reaches a terminal stage.
func (m *Machine) Begin(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; ok {
		return errs.ErrOnboardingInProgress
	}
	m.sessions[key] = &session{
		stage:    StageAwaitingPhone,
		deadline: m.now().Add(m.idleTimeout),
	}
	logger.Info(ctx, "service.onboarding", "onboarding.begin",
		slog.Int64("user_id", key.UserID),
		slog.Int64("chat_id", key.ChatID),
	)
	return nil
}

// SubmitPhone consumes the phone number. A malformed number costs one retry;
// exhausting the cap ends the conversation.
func (m *Machine) SubmitPhone(ctx context.Context, key Key, phone string) (Result, error) {
	s, err := m.take(key, StageAwaitingPhone)
	if err != nil {
		return Result{}, err
	}

	if !country.ValidFormat(phone) {
		return m.miss(ctx, key, s, errs.ErrInvalidPhoneFormat)
	}

	hs, err := m.factory(ctx)
	if err != nil {
		m.release(key, s)
		return Result{}, fmt.Errorf("open handshake: %w", err)
	}
	if err := hs.Start(ctx, phone); err != nil {
		_ = hs.Close(ctx)
		m.release(key, s)
		return Result{}, fmt.Errorf("request code: %w", err)
	}

	s.phone = phone
	s.handshake = hs
	m.advance(ctx, key, s, StageAwaitingCode)
	return Result{Next: StageAwaitingCode}, nil
}

// SubmitCode consumes the login code. A wrong code costs one retry; an
// expired code ends the conversation.
func (m *Machine) SubmitCode(ctx context.Context, key Key, code string) (Result, error) {
	s, err := m.take(key, StageAwaitingCode)
	if err != nil {
		return Result{}, err
	}

	res, err := s.handshake.SubmitCode(ctx, code)
	switch {
	case err == nil:
	case isRetryable(err, errs.ErrInvalidCode):
		return m.miss(ctx, key, s, errs.ErrInvalidCode)
	default:
		m.fail(ctx, key, s, err)
		return Result{Next: StageFailed}, err
	}

	if res.NeedPassword {
		m.advance(ctx, key, s, StageAwaitingPassword)
		return Result{Next: StageAwaitingPassword}, nil
	}
	return m.complete(ctx, key, s, res.Session)
}

// SubmitPassword consumes the 2FA secret.
func (m *Machine) SubmitPassword(ctx context.Context, key Key, password string) (Result, error) {
	s, err := m.take(key, StageAwaitingPassword)
	if err != nil {
		return Result{}, err
	}

	payload, err := s.handshake.SubmitPassword(ctx, password)
	switch {
	case err == nil:
	case isRetryable(err, errs.ErrInvalidPassword):
		return m.miss(ctx, key, s, errs.ErrInvalidPassword)
	default:
		m.fail(ctx, key, s, err)
		return Result{Next: StageFailed}, err
	}
	return m.complete(ctx, key, s, payload)
}

// Cancel ends the conversation from any stage and releases the handshake.
func (m *Machine) Cancel(ctx context.Context, key Key) error {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return errs.ErrNoOnboarding
	}
	if s.handshake != nil {
		_ = s.handshake.Close(ctx)
	}
	logger.Info(ctx, "service.onboarding", "onboarding.cancel",
		slog.Int64("user_id", key.UserID),
		slog.String("state", s.stage.String()),
	)
	return nil
}

// StartSweeper expires idle conversations until ctx is done.
func (m *Machine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.SweepIdle(ctx)
			}
		}
	}()
}

// SweepIdle expires every conversation past its deadline.
func (m *Machine) SweepIdle(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	var expired []Key
	var handles []Handshake
	for key, s := range m.sessions {
		if s.busy {
			continue
		}
		if now.After(s.deadline) {
			expired = append(expired, key)
			handles = append(handles, s.handshake)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for i, key := range expired {
		if handles[i] != nil {
			_ = handles[i].Close(ctx)
		}
		logger.Warn(ctx, "service.onboarding", "onboarding.timeout",
			slog.Int64("user_id", key.UserID),
			slog.Int64("chat_id", key.ChatID),
		)
		if m.OnExpire != nil {
			m.OnExpire(key)
		}
	}
}

// take marks the session busy for the duration of a transition. The session
// stays in the map so Begin keeps refusing a second conversation.
func (m *Machine) take(key Key, want Stage) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, errs.ErrNoOnboarding
	}
	if s.busy {
		return nil, errs.ErrOnboardingInProgress
	}
	if s.stage != want {
		return nil, fmt.Errorf("%w: stage %s", errs.ErrNoOnboarding, s.stage)
	}
	s.busy = true
	return s, nil
}

// release finishes a transition that kept the conversation alive. A session
// cancelled mid-transition is not resurrected.
func (m *Machine) release(key Key, s *session) {
	m.mu.Lock()
	if cur, ok := m.sessions[key]; ok && cur == s {
		s.busy = false
	}
	m.mu.Unlock()
}

// drop finishes a terminal transition.
func (m *Machine) drop(key Key) {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
}

// advance moves the session to the next stage, resetting the retry counter
// and the idle deadline.
func (m *Machine) advance(ctx context.Context, key Key, s *session, next Stage) {
	s.stage = next
	s.retries = 0
	s.deadline = m.now().Add(m.idleTimeout)
	m.release(key, s)
	logger.Debug(ctx, "service.onboarding", "onboarding.advance",
		slog.Int64("user_id", key.UserID),
		slog.String("state", next.String()),
	)
}

// miss charges one retry for cause. The conversation stays in place until
// the cap, then ends as Failed.
func (m *Machine) miss(ctx context.Context, key Key, s *session, cause error) (Result, error) {
	s.retries++
	if s.retries >= m.maxRetries {
		m.fail(ctx, key, s, errs.ErrRetriesExhausted)
		return Result{Next: StageFailed}, fmt.Errorf("%w: %w", errs.ErrRetriesExhausted, cause)
	}
	s.deadline = m.now().Add(m.idleTimeout)
	m.release(key, s)
	return Result{Next: s.stage}, cause
}

func (m *Machine) fail(ctx context.Context, key Key, s *session, cause error) {
	m.drop(key)
	if s.handshake != nil {
		_ = s.handshake.Close(ctx)
	}
	logger.Warn(ctx, "service.onboarding", "onboarding.fail",
		slog.Int64("user_id", key.UserID),
		slog.String("state", s.stage.String()),
		slog.String("error", cause.Error()),
	)
}

// complete is the single success transition: write the artifact, persist the
// account, release the handshake. Country resolution happens here so a
// failed conversation never touches the taxonomy.
func (m *Machine) complete(ctx context.Context, key Key, s *session, payload []byte) (Result, error) {
	defer func() {
		if s.handshake != nil {
			_ = s.handshake.Close(ctx)
		}
	}()

	file, err := m.store.Save(s.phone, payload)
	if err != nil {
		m.fail(ctx, key, s, err)
		return Result{Next: StageFailed}, fmt.Errorf("store session: %w", err)
	}

	a := &model.Account{
		UserID:      key.UserID,
		PhoneNumber: s.phone,
		AddedDate:   m.now().UTC().Truncate(24 * time.Hour),
		SessionFile: file,
	}
	if c, ok := country.Resolve(s.phone); ok {
		a.CountryCode = sql.NullString{String: c.Code, Valid: true}
		a.CountryName = sql.NullString{String: c.Name, Valid: true}
	}

	id, err := m.accounts.Insert(ctx, a)
	if err != nil {
		_ = m.store.Remove(file)
		m.fail(ctx, key, s, err)
		return Result{Next: StageFailed}, err
	}
	a.ID = id
	m.drop(key)

	logger.Info(ctx, "service.onboarding", "onboarding.complete",
		slog.Int64("user_id", key.UserID),
		slog.Int64("account_id", id),
		slog.String("phone", s.phone),
		slog.String("country", a.CountryCode.String),
	)
	return Result{Next: StageCompleted, Account: a}, nil
}

func isRetryable(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
