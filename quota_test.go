package keygate

import (
	"context"
	"testing"
	"time"
)

func TestQuotaUnmeteredAccountsNeverTouchStore(t *testing.T) {
	store := newMemStore()
	tracker := newQuotaTracker(store, QuotaConfig{DailyLimit: 500})

	admin := &Account{UserID: "adm", IsAdmin: true, UserType: UserTypeAdmin}
	premium := &Account{UserID: "u2", UserType: UserTypePremium}

	for _, a := range []*Account{admin, premium} {
		if limit := tracker.LimitFor(a); limit != 0 {
			t.Fatalf("%s: expected unmetered limit 0, got %d", a.UserID, limit)
		}
		used, err := tracker.CurrentUsage(context.Background(), a)
		if err != nil || used != 0 {
			t.Fatalf("%s: expected zero usage, got %d err %v", a.UserID, used, err)
		}
		if _, err := tracker.Charge(context.Background(), a, 1000); err != nil {
			t.Fatalf("%s: unmetered charge must be a no-op, got %v", a.UserID, err)
		}
		if err := tracker.Refund(context.Background(), a, 1000); err != nil {
			t.Fatalf("%s: unmetered refund must be a no-op, got %v", a.UserID, err)
		}
	}
}

func TestQuotaCurrentUsageSkipsStoreOnSameDay(t *testing.T) {
	store := newMemStore()
	tracker := newQuotaTracker(store, QuotaConfig{DailyLimit: 500})

	a := &Account{
		UserID:       "u1",
		UserType:     UserTypeNormal,
		DailyUsed:    7,
		LastResetDay: today(),
	}
	// The account is deliberately absent from the store; a same-day read
	// must not need it.
	used, err := tracker.CurrentUsage(context.Background(), a)
	if err != nil {
		t.Fatalf("CurrentUsage failed: %v", err)
	}
	if used != 7 {
		t.Fatalf("expected in-memory usage 7, got %d", used)
	}
}

func TestQuotaRefundFloorsAtZero(t *testing.T) {
	store := newMemStore()
	tracker := newQuotaTracker(store, QuotaConfig{DailyLimit: 500})
	seedNormal(store, "key-1", "u1", 3)
	account, err := store.GetByKey(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}

	if err := tracker.Refund(context.Background(), account, 10); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if got := store.get("key-1"); got.DailyUsed != 0 {
		t.Fatalf("expected usage floored at 0, got %d", got.DailyUsed)
	}
}

func TestQuotaChargePerformsLazyReset(t *testing.T) {
	store := newMemStore()
	tracker := newQuotaTracker(store, QuotaConfig{DailyLimit: 500})
	expiry := time.Now().Add(24 * time.Hour)
	store.put(Account{
		Key:          "key-1",
		UserID:       "u1",
		UserType:     UserTypeNormal,
		Expiry:       &expiry,
		CreatedAt:    time.Now(),
		DailyUsed:    499,
		LastResetDay: "2020-01-01",
	})
	account, err := store.GetByKey(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}

	// Yesterday's 499 must not block today's charge.
	used, err := tracker.Charge(context.Background(), account, 5)
	if err != nil {
		t.Fatalf("Charge failed: %v", err)
	}
	if used != 5 {
		t.Fatalf("expected fresh-day total 5, got %d", used)
	}
}
