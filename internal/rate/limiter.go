package rate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds attempt limiter tuning parameters.
type Config struct {
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxCodeAttempts  int
	CodeCooldown     time.Duration
}

// Limiter enforces fixed-window budgets for login attempts (per credential
// key) and second-factor code confirmations (per user) using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin checks whether the credential key is within the login attempt
// budget. Returns an error if rate-limited.
func (l *Limiter) CheckLogin(ctx context.Context, credentialKey string) error {
	return l.check(ctx, loginKey(credentialKey), l.config.MaxLoginAttempts)
}

// RecordLoginFailure records a failed login attempt for the credential key.
func (l *Limiter) RecordLoginFailure(ctx context.Context, credentialKey string) error {
	return l.record(ctx, loginKey(credentialKey), l.config.MaxLoginAttempts, l.config.LoginCooldown)
}

// ResetLogin clears the failed-login counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, credentialKey string) error {
	return l.reset(ctx, loginKey(credentialKey))
}

// CheckCode checks whether the user is within the code confirmation budget.
func (l *Limiter) CheckCode(ctx context.Context, userID string) error {
	return l.check(ctx, codeKey(userID), l.config.MaxCodeAttempts)
}

// RecordCodeFailure records a failed code confirmation for the user.
func (l *Limiter) RecordCodeFailure(ctx context.Context, userID string) error {
	return l.record(ctx, codeKey(userID), l.config.MaxCodeAttempts, l.config.CodeCooldown)
}

// ResetCode clears the code-attempt counter after a successful
// confirmation or a second-factor disable.
func (l *Limiter) ResetCode(ctx context.Context, userID string) error {
	return l.reset(ctx, codeKey(userID))
}

func (l *Limiter) check(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) record(ctx context.Context, key string, maxAttempts int, ttl time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Raw credential keys never reach Redis; counter keys use a digest.
func loginKey(credentialKey string) string {
	sum := sha256.Sum256([]byte(credentialKey))
	return "kg:login:" + base64.RawURLEncoding.EncodeToString(sum[:16])
}

func codeKey(userID string) string {
	return "kg:code:" + userID
}
