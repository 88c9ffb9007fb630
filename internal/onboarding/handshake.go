// Package onboarding runs the add-account conversation as an explicit state
// machine. One conversation is active per (user, chat) at a time; all
// persistence happens on the single success transition.
package onboarding

import "context"

// CodeResult is the outcome of a login-code submission.
type CodeResult struct {
	// NeedPassword is set when the account has a 2FA secret; the session
	// payload arrives only after SubmitPassword.
	NeedPassword bool
	// Session holds the authenticated session payload when the code alone
	// completed the login.
	Session []byte
}

// Handshake is one phone-authentication exchange with the external messaging
// service. Implementations report invalid/expired input through the errs
// sentinels so the machine can count retries.
type Handshake interface {
	// Start requests code delivery to the phone number.
	Start(ctx context.Context, phone string) error
	// SubmitCode exchanges the delivered code for a session payload or a
	// password challenge.
	SubmitCode(ctx context.Context, code string) (CodeResult, error)
	// SubmitPassword answers the 2FA challenge.
	SubmitPassword(ctx context.Context, password string) ([]byte, error)
	// Close releases the exchange. Safe to call at any stage.
	Close(ctx context.Context) error
}

// HandshakeFactory opens a fresh exchange for one conversation.
type HandshakeFactory func(ctx context.Context) (Handshake, error)
