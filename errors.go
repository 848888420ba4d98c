package keygate

import "errors"

var (
	// ErrCredentialInvalid covers unknown keys and malformed credentials.
	// The two cases are intentionally indistinguishable to callers so that
	// login cannot be used to enumerate accounts.
	ErrCredentialInvalid = errors.New("invalid credential")
	// ErrCredentialExpired is returned when the key's expiry is in the past.
	// Expired keys are permanently unusable for login but are not deleted.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrLoginRateLimited is returned when login attempts for a key exceed
	// the configured budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrTokenInvalid covers malformed, mis-signed, and expired session
	// assertions uniformly, and pending assertions presented where a full
	// session is required.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrForbidden is returned when a valid token lacks the privilege an
	// operation requires.
	ErrForbidden = errors.New("forbidden")
	// ErrQuotaExceeded is returned when a metered send would push daily
	// usage past the configured limit.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrTwoFactorNotConfigured is returned when a confirmation or
	// verification is attempted with no provisioned secret.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
	// ErrTwoFactorInvalidCode is returned when a TOTP code does not verify
	// against the stored secret.
	ErrTwoFactorInvalidCode = errors.New("invalid two-factor code")
	// ErrTwoFactorRateLimited is returned when code confirmation attempts
	// exceed the configured budget.
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	// ErrAccountNotFound is returned by admin lookups and deletes of an
	// absent key.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when inserting an account whose key is
	// already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountInvalid is returned when an add-account request is
	// structurally unusable (empty key or user id, unknown user type,
	// missing expiry for a time-boxed account).
	ErrAccountInvalid = errors.New("invalid account request")
	// ErrSendInvalid is returned when a send request is structurally
	// unusable before any quota or dispatch work happens.
	ErrSendInvalid = errors.New("invalid send request")
	// ErrSettingInvalid is returned when a settings write carries an
	// empty value.
	ErrSettingInvalid = errors.New("invalid setting value")
	// ErrStorageUnavailable wraps durable-store I/O failures. It is
	// reported, never recovered locally.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or partially wired engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
