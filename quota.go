package keygate

import (
	"context"
	"time"
)

const quotaDayFormat = "2006-01-02"

// quotaTracker applies the metering policy over the store's atomic usage
// primitives. Only normal, non-admin accounts are metered; every operation
// is a no-op returning unmetered status for the rest.
type quotaTracker struct {
	store AccountStore
	limit int
	now   func() time.Time
}

func newQuotaTracker(store AccountStore, cfg QuotaConfig) *quotaTracker {
	return &quotaTracker{
		store: store,
		limit: cfg.DailyLimit,
		now:   time.Now,
	}
}

func (q *quotaTracker) day() string {
	return q.now().Format(quotaDayFormat)
}

// LimitFor returns the advertised daily budget: 0 means unmetered.
func (q *quotaTracker) LimitFor(a *Account) int {
	if !a.Metered() {
		return 0
	}
	return q.limit
}

// CurrentUsage returns today's usage, lazily resetting the counter the
// first time the account is touched on a new day.
func (q *quotaTracker) CurrentUsage(ctx context.Context, a *Account) (int, error) {
	if !a.Metered() {
		return 0, nil
	}
	day := q.day()
	if a.LastResetDay == day {
		return a.DailyUsed, nil
	}
	return q.store.ResetDailyUsage(ctx, a.UserID, day)
}

// Charge atomically adds quantity to today's usage, performing the lazy
// reset in the same statement and failing with [ErrQuotaExceeded] when the
// new total would pass the limit. Unmetered accounts are never charged.
func (q *quotaTracker) Charge(ctx context.Context, a *Account, quantity int) (int, error) {
	if !a.Metered() {
		return 0, nil
	}
	return q.store.ChargeDailyUsage(ctx, a.UserID, q.day(), quantity, q.limit)
}

// Refund credits back units that were charged but not delivered, floored
// at zero and confined to the same calendar day.
func (q *quotaTracker) Refund(ctx context.Context, a *Account, quantity int) error {
	if !a.Metered() || quantity <= 0 {
		return nil
	}
	_, err := q.store.RefundDailyUsage(ctx, a.UserID, q.day(), quantity)
	return err
}
