package keygate

import (
	"context"
	"time"
)

// UserType is the privilege tier of an account.
type UserType string

const (
	// UserTypeAdmin accounts are unmetered, never expire, and may manage
	// other accounts. Admins are the only accounts that can carry a TOTP
	// second factor.
	UserTypeAdmin UserType = "admin"
	// UserTypePremium accounts are unmetered but time-boxed.
	UserTypePremium UserType = "premium"
	// UserTypeNormal accounts are metered against the daily quota.
	UserTypeNormal UserType = "normal"
)

// SettingDispatchEndpoint is the settings-store name of the process-wide
// dispatch collaborator endpoint URL.
const SettingDispatchEndpoint = "dispatch_endpoint"

// Account is the persisted record behind one opaque key credential.
type Account struct {
	// Key is the sole credential: an opaque shared secret string, also the
	// primary identifier in storage.
	Key string
	// UserID is the stable external identity used for quota and
	// second-factor lookups, and the subject of issued tokens.
	UserID  string
	IsAdmin bool
	// UserType may be empty on rows created before the tier column
	// existed; EffectiveType derives the tier from IsAdmin then.
	UserType  UserType
	Expiry    *time.Time
	CreatedAt time.Time

	DailyUsed int
	// LastResetDay is the calendar day ("2006-01-02") of the last quota
	// reset; empty when usage was never reset.
	LastResetDay string

	// TwoFactorSecret is the sealed TOTP secret; non-nil from the moment
	// provisioning begins. TwoFactorEnabled is true only after a
	// provisioning code has been confirmed.
	TwoFactorSecret  []byte
	TwoFactorEnabled bool
}

// EffectiveType resolves the account tier, deriving it from IsAdmin for
// rows that predate the user_type column.
func (a *Account) EffectiveType() UserType {
	if a.UserType != "" {
		return a.UserType
	}
	if a.IsAdmin {
		return UserTypeAdmin
	}
	return UserTypeNormal
}

// Metered reports whether the account counts against the daily quota.
// Only non-admin normal accounts are metered.
func (a *Account) Metered() bool {
	return !a.IsAdmin && a.EffectiveType() == UserTypeNormal
}

// ExpiredAt reports whether the key is past its expiry. Accounts without
// an expiry (admins) never expire.
func (a *Account) ExpiredAt(now time.Time) bool {
	return a.Expiry != nil && a.Expiry.Before(now)
}

// AccountStore is the durable credential store contract. Implementations
// must serialize mutations per account row; the daily-usage operations are
// single atomic statements so concurrent callers cannot double-reset a day
// or race past the quota limit.
//
// Lookup misses return [ErrAccountNotFound], duplicate inserts return
// [ErrAccountExists], and I/O failures wrap [ErrStorageUnavailable].
type AccountStore interface {
	GetByKey(ctx context.Context, key string) (*Account, error)
	GetByUserID(ctx context.Context, userID string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Delete(ctx context.Context, key string) error
	// List returns all accounts ordered by creation time, newest first.
	List(ctx context.Context) ([]Account, error)

	// ResetDailyUsage zeroes the counter if the stored reset day differs
	// from day, advancing the reset day atomically, and returns the usage
	// now on record for day.
	ResetDailyUsage(ctx context.Context, userID, day string) (int, error)
	// ChargeDailyUsage performs the lazy reset for day and adds delta in
	// one atomic statement, failing with [ErrQuotaExceeded] when the new
	// total would pass limit. It returns the committed total.
	ChargeDailyUsage(ctx context.Context, userID, day string, delta, limit int) (int, error)
	// RefundDailyUsage subtracts delta from the counter for day, floored
	// at zero. Refunds for a day other than the stored reset day are
	// no-ops.
	RefundDailyUsage(ctx context.Context, userID, day string, delta int) (int, error)

	// SetTwoFactorSecret stores a freshly sealed secret and clears the
	// enabled flag, restarting the pending-confirmation state.
	SetTwoFactorSecret(ctx context.Context, userID string, sealed []byte) error
	EnableTwoFactor(ctx context.Context, userID string) error
	// DisableTwoFactor clears both the enabled flag and the secret, and is
	// idempotent.
	DisableTwoFactor(ctx context.Context, userID string) error
}

// SettingsStore holds process-wide configuration values the engine reads
// but does not own. Get returns an empty string for absent names.
type SettingsStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// DispatchRequest is handed to the external dispatch collaborator.
type DispatchRequest struct {
	Phone    string
	Quantity int
	Turbo    bool
}

// DispatchResult reports how many units the collaborator accepted and how
// many it could not deliver.
type DispatchResult struct {
	Sent   int
	Failed int
}

// Dispatcher is the outbound messaging collaborator. It is a black box to
// the engine: an error return is converted into a zero-sent, all-failed
// result rather than propagated.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// LoginResult is returned by [Engine.Login] and [Engine.VerifySecondFactor].
// Either Token is set, or RequiresSecondFactor is true and PendingToken
// carries the short-lived assertion accepted only by VerifySecondFactor.
type LoginResult struct {
	Token string

	RequiresSecondFactor bool
	PendingToken         string

	IsAdmin    bool
	UserType   UserType
	DailyLimit int
	DailyUsed  int
}

// SendRequest is the metered outbound operation input.
type SendRequest struct {
	Phone    string
	Quantity int
	Turbo    bool
}

// SendResult carries the dispatch outcome and the refreshed session token
// callers are expected to adopt.
type SendResult struct {
	Token  string
	Sent   int
	Failed int
}

// AddAccountRequest is the admin add-key input. ExpiryDays is ignored for
// admin accounts, which never expire.
type AddAccountRequest struct {
	Key        string
	UserID     string
	ExpiryDays int
	IsAdmin    bool
	UserType   UserType
}

// AccountSummary is the admin list view of one account.
type AccountSummary struct {
	Key              string
	UserID           string
	Expiry           *time.Time
	CreatedAt        time.Time
	IsAdmin          bool
	UserType         UserType
	DailyLimit       int
	DailyUsed        int
	TwoFactorEnabled bool
}

// TwoFactorProvision holds the base32 TOTP secret and the otpauth://
// enrollment URI returned by [Engine.BeginTwoFactor]. QR rendering of the
// URI is the caller's job.
type TwoFactorProvision struct {
	Secret string
	URI    string
}
