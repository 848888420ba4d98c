package keygate

import (
	"errors"
	"time"
)

// Config defines engine-wide tuning. Construct with defaultConfig-backed
// [Builder.WithConfig] and treat as immutable after Build.
type Config struct {
	Token   TokenConfig
	TOTP    TOTPConfig
	Quota   QuotaConfig
	Limits  LimitsConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// TokenConfig controls session assertion signing.
type TokenConfig struct {
	// Secret is the single process-wide HMAC-SHA-256 signing secret.
	Secret []byte
	// SessionTTL bounds full sessions (default 30m). Tokens are refreshed
	// on every privileged mutation but idle tokens expire with no sliding
	// window.
	SessionTTL time.Duration
	// PendingTTL bounds pending-2FA assertions (default 5m).
	PendingTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

// TOTPConfig controls second-factor provisioning and verification.
type TOTPConfig struct {
	// Issuer is the label embedded in provisioning URIs.
	Issuer string
	Digits int
	// Period is the TOTP step in seconds (default 30).
	Period int
	// Skew is the verification tolerance in steps either side of now.
	Skew int
	// SealKey, when set, must be 32 bytes and enables XChaCha20-Poly1305
	// sealing of stored secrets. Empty means secrets are stored raw.
	SealKey []byte
}

// QuotaConfig controls daily metering of normal accounts.
type QuotaConfig struct {
	// DailyLimit is the advertised per-day budget for normal accounts
	// (default 500). Admin and premium accounts are unmetered.
	DailyLimit int
}

// LimitsConfig controls the Redis-backed fixed-window attempt limiters.
// When Enabled, Build requires a Redis client.
type LimitsConfig struct {
	Enabled          bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxCodeAttempts  int
	CodeCooldown     time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SessionTTL: 30 * time.Minute,
			PendingTTL: 5 * time.Minute,
			Issuer:     "keygate",
		},
		TOTP: TOTPConfig{
			Issuer: "keygate",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		Quota: QuotaConfig{
			DailyLimit: 500,
		},
		Limits: LimitsConfig{
			Enabled:          false,
			MaxLoginAttempts: 10,
			LoginCooldown:    time.Minute,
			MaxCodeAttempts:  5,
			CodeCooldown:     time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if len(c.Token.Secret) == 0 {
		return errors.New("token signing secret required")
	}
	if c.Token.SessionTTL <= 0 || c.Token.PendingTTL <= 0 {
		return errors.New("invalid token TTL configuration")
	}
	if c.Token.PendingTTL > c.Token.SessionTTL {
		return errors.New("pending TTL must not exceed session TTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("invalid token leeway configuration")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be 6..8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("totp skew must be 0..2")
	}
	if n := len(c.TOTP.SealKey); n != 0 && n != 32 {
		return errors.New("totp seal key must be 32 bytes when set")
	}
	if c.Quota.DailyLimit <= 0 {
		return errors.New("daily quota limit must be positive")
	}
	if c.Limits.Enabled {
		if c.Limits.MaxLoginAttempts <= 0 || c.Limits.MaxCodeAttempts <= 0 {
			return errors.New("attempt limits must be positive when limiting is enabled")
		}
		if c.Limits.LoginCooldown <= 0 || c.Limits.CodeCooldown <= 0 {
			return errors.New("limit cooldowns must be positive when limiting is enabled")
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.TOTP.SealKey = cloneBytes(cfg.TOTP.SealKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
