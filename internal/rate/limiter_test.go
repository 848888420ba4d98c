package rate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := New(client, Config{
		MaxLoginAttempts: 3,
		LoginCooldown:    time.Minute,
		MaxCodeAttempts:  2,
		CodeCooldown:     30 * time.Second,
	})
	return limiter, mr
}

func TestLoginBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	if err := limiter.CheckLogin(ctx, "key-1"); err != nil {
		t.Fatalf("fresh key should pass: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := limiter.RecordLoginFailure(ctx, "key-1"); err != nil {
			t.Fatalf("failure %d within budget: %v", i, err)
		}
	}
	if err := limiter.RecordLoginFailure(ctx, "key-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on the final failure, got %v", err)
	}
	if err := limiter.CheckLogin(ctx, "key-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on check, got %v", err)
	}

	// Other keys keep their own budget.
	if err := limiter.CheckLogin(ctx, "key-2"); err != nil {
		t.Fatalf("unrelated key should pass: %v", err)
	}
}

func TestLoginResetClearsBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = limiter.RecordLoginFailure(ctx, "key-1")
	}
	if err := limiter.CheckLogin(ctx, "key-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limiter engaged, got %v", err)
	}

	if err := limiter.ResetLogin(ctx, "key-1"); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "key-1"); err != nil {
		t.Fatalf("expected budget restored, got %v", err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = limiter.RecordLoginFailure(ctx, "key-1")
	}
	if err := limiter.CheckLogin(ctx, "key-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limiter engaged, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := limiter.CheckLogin(ctx, "key-1"); err != nil {
		t.Fatalf("expected window expired, got %v", err)
	}
}

func TestCodeBudget(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	if err := limiter.RecordCodeFailure(ctx, "u1"); err != nil {
		t.Fatalf("first failure within budget: %v", err)
	}
	if err := limiter.RecordCodeFailure(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on second failure, got %v", err)
	}
	if err := limiter.CheckCode(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on check, got %v", err)
	}

	if err := limiter.ResetCode(ctx, "u1"); err != nil {
		t.Fatalf("ResetCode failed: %v", err)
	}
	if err := limiter.CheckCode(ctx, "u1"); err != nil {
		t.Fatalf("expected budget restored, got %v", err)
	}

	_ = limiter.RecordCodeFailure(ctx, "u1")
	mr.FastForward(31 * time.Second)
	if err := limiter.CheckCode(ctx, "u1"); err != nil {
		t.Fatalf("expected window expired, got %v", err)
	}
}

func TestRawCredentialNeverStored(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	const credential = "super-secret-credential-key"
	if err := limiter.RecordLoginFailure(ctx, credential); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}

	for _, key := range mr.Keys() {
		if strings.Contains(key, credential) {
			t.Fatalf("raw credential leaked into redis key %q", key)
		}
	}
}

func TestRedisOutageSurfacesAsUnavailable(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	mr.Close()

	if err := limiter.RecordLoginFailure(ctx, "key-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := limiter.CheckLogin(ctx, "key-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
