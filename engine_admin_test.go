package keygate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAddAccountAndLogin(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedAdmin(store, "admin-key", "adm")

	token := loginToken(t, engine, "admin-key")
	token, err := engine.AddAccount(context.Background(), token, AddAccountRequest{
		Key:        "fresh-key",
		UserID:     "u9",
		ExpiryDays: 30,
	})
	if err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a refreshed token")
	}

	got := store.get("fresh-key")
	if got.EffectiveType() != UserTypeNormal || got.IsAdmin {
		t.Fatalf("expected a normal account, got %+v", got)
	}
	if got.Expiry == nil || time.Until(*got.Expiry) > 31*24*time.Hour {
		t.Fatalf("unexpected expiry %v", got.Expiry)
	}

	res, err := engine.Login(context.Background(), "fresh-key")
	if err != nil {
		t.Fatalf("login with added key failed: %v", err)
	}
	if res.DailyLimit != 500 || res.DailyUsed != 0 {
		t.Fatalf("expected fresh quota 0/500, got %d/%d", res.DailyUsed, res.DailyLimit)
	}

	if _, err := engine.AddAccount(context.Background(), token, AddAccountRequest{
		Key:        "fresh-key",
		UserID:     "u10",
		ExpiryDays: 30,
	}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists for duplicate key, got %v", err)
	}
}

func TestAddAccountAdminNeverExpires(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedAdmin(store, "admin-key", "adm")

	token := loginToken(t, engine, "admin-key")
	if _, err := engine.AddAccount(context.Background(), token, AddAccountRequest{
		Key:     "second-admin",
		UserID:  "adm2",
		IsAdmin: true,
	}); err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}

	got := store.get("second-admin")
	if !got.IsAdmin || got.EffectiveType() != UserTypeAdmin {
		t.Fatalf("expected admin account, got %+v", got)
	}
	if got.Expiry != nil {
		t.Fatalf("admin accounts must not expire, got %v", got.Expiry)
	}
}

func TestAddAccountValidation(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedAdmin(store, "admin-key", "adm")
	token := loginToken(t, engine, "admin-key")

	cases := []AddAccountRequest{
		{Key: "", UserID: "u1", ExpiryDays: 30},
		{Key: "k", UserID: "", ExpiryDays: 30},
		{Key: "k", UserID: "u1", ExpiryDays: 0},
		{Key: "k", UserID: "u1", ExpiryDays: -5},
		{Key: "k", UserID: "u1", ExpiryDays: 30, UserType: "gold"},
	}
	for _, req := range cases {
		if _, err := engine.AddAccount(context.Background(), token, req); !errors.Is(err, ErrAccountInvalid) {
			t.Fatalf("expected ErrAccountInvalid for %+v, got %v", req, err)
		}
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedNormal(store, "key-1", "u1", 0)
	token := loginToken(t, engine, "key-1")

	if _, err := engine.AddAccount(context.Background(), token, AddAccountRequest{Key: "k", UserID: "u2", ExpiryDays: 30}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("AddAccount: expected ErrForbidden, got %v", err)
	}
	if _, _, err := engine.ListAccounts(context.Background(), token); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ListAccounts: expected ErrForbidden, got %v", err)
	}
	if _, err := engine.DeleteAccount(context.Background(), token, "key-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("DeleteAccount: expected ErrForbidden, got %v", err)
	}
	if _, err := engine.SetDispatchEndpoint(context.Background(), token, "https://example.com"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("SetDispatchEndpoint: expected ErrForbidden, got %v", err)
	}
}

func TestAdminOperationsRejectPendingToken(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedAdmin(store, "admin-key", "adm")

	pending, err := engine.tokens.IssuePending(adminIdentity("adm"))
	if err != nil {
		t.Fatalf("IssuePending failed: %v", err)
	}
	if _, _, err := engine.ListAccounts(context.Background(), pending); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for pending assertion, got %v", err)
	}
}

func TestListAccounts(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedAdmin(store, "admin-key", "adm")
	expiry := time.Now().Add(24 * time.Hour)
	store.put(Account{
		Key:          "key-1",
		UserID:       "u1",
		UserType:     UserTypeNormal,
		Expiry:       &expiry,
		CreatedAt:    time.Now().Add(time.Second),
		DailyUsed:    12,
		LastResetDay: today(),
	})

	token := loginToken(t, engine, "admin-key")
	summaries, newToken, err := engine.ListAccounts(context.Background(), token)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if newToken == "" {
		t.Fatal("expected a refreshed token")
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(summaries))
	}
	if summaries[0].UserID != "u1" {
		t.Fatalf("expected newest first, got %s", summaries[0].UserID)
	}
	if summaries[0].DailyLimit != 500 || summaries[0].DailyUsed != 12 {
		t.Fatalf("unexpected normal quota view %d/%d", summaries[0].DailyUsed, summaries[0].DailyLimit)
	}
	if summaries[1].DailyLimit != 0 {
		t.Fatalf("expected unmetered admin limit 0, got %d", summaries[1].DailyLimit)
	}
}

func TestDeleteAccount(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedAdmin(store, "admin-key", "adm")
	seedNormal(store, "key-1", "u1", 0)

	token := loginToken(t, engine, "admin-key")
	token, err := engine.DeleteAccount(context.Background(), token, "key-1")
	if err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	if _, err := engine.Login(context.Background(), "key-1"); !errors.Is(err, ErrCredentialInvalid) {
		t.Fatalf("expected deleted key to stop working, got %v", err)
	}
	if _, err := engine.DeleteAccount(context.Background(), token, "key-1"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on double delete, got %v", err)
	}
}

func TestDispatchEndpointRoundTrip(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedAdmin(store, "admin-key", "adm")

	value, err := engine.DispatchEndpoint(context.Background())
	if err != nil || value != "" {
		t.Fatalf("expected empty unset endpoint, got %q err %v", value, err)
	}

	token := loginToken(t, engine, "admin-key")
	if _, err := engine.SetDispatchEndpoint(context.Background(), token, ""); !errors.Is(err, ErrSettingInvalid) {
		t.Fatalf("expected ErrSettingInvalid for empty endpoint, got %v", err)
	}

	token, err = engine.SetDispatchEndpoint(context.Background(), token, "https://sender.example/api")
	if err != nil {
		t.Fatalf("SetDispatchEndpoint failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a refreshed token")
	}

	value, err = engine.DispatchEndpoint(context.Background())
	if err != nil || value != "https://sender.example/api" {
		t.Fatalf("expected stored endpoint back, got %q err %v", value, err)
	}
}

func TestMetricsCountLoginOutcomes(t *testing.T) {
	engine, store, _ := newTestEngine(t, func(b *Builder) {
		b.WithMetricsEnabled(true)
	})
	seedNormal(store, "key-1", "u1", 0)

	_, _ = engine.Login(context.Background(), "key-1")
	_, _ = engine.Login(context.Background(), "wrong")

	snap := engine.MetricsSnapshot()
	if snap[MetricLoginSuccess] != 1 || snap[MetricLoginFailure] != 1 {
		t.Fatalf("unexpected counters %v", snap)
	}
}
