// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotOwner indicates the entity does not exist or belongs to another
	// user. The two cases are deliberately indistinguishable so that id
	// guessing leaks nothing.
	ErrNotOwner = errors.New("not found or not owned")

	// ErrDuplicatePhone indicates the (owner, phone) pair already exists.
	ErrDuplicatePhone = errors.New("phone number already stored")

	// ErrInvalidPhoneFormat indicates a phone number that is not a plausible
	// international number.
	ErrInvalidPhoneFormat = errors.New("invalid phone format")

	// ErrInvalidProxyConfig indicates a malformed proxy definition.
	ErrInvalidProxyConfig = errors.New("invalid proxy configuration")

	// ErrAccessDenied indicates the whitelist/admin gate rejected the request.
	ErrAccessDenied = errors.New("access denied")

	// ErrAdminOnly indicates the action requires the admin flag.
	ErrAdminOnly = errors.New("admin only")
)

// Onboarding state machine sentinels.
var (
	// ErrOnboardingInProgress indicates another add-account conversation is
	// already active for the same user and chat.
	ErrOnboardingInProgress = errors.New("onboarding already in progress")

	// ErrNoOnboarding indicates input arrived with no active conversation.
	ErrNoOnboarding = errors.New("no onboarding in progress")

	// ErrInvalidCode indicates the external service rejected the login code.
	ErrInvalidCode = errors.New("invalid login code")

	// ErrInvalidPassword indicates the external service rejected the 2FA secret.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrCodeExpired indicates the login code expired before submission.
	ErrCodeExpired = errors.New("login code expired")

	// ErrOnboardingTimeout indicates the conversation idled past its deadline.
	ErrOnboardingTimeout = errors.New("onboarding timed out")

	// ErrRetriesExhausted indicates the per-stage retry cap was hit.
	ErrRetriesExhausted = errors.New("too many attempts")
)

// Export engine sentinels.
var (
	// ErrEmptySelection indicates the export selection resolved to no accounts.
	ErrEmptySelection = errors.New("no accounts selected")

	// ErrUnsupportedFormat indicates an unrecognized export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
