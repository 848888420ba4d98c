package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		SessionTTL: 30 * time.Minute,
		PendingTTL: 5 * time.Minute,
		Issuer:     "keygate",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{SessionTTL: time.Minute, PendingTTL: time.Minute},
		{Secret: []byte("x"), PendingTTL: time.Minute},
		{Secret: []byte("x"), SessionTTL: time.Minute},
		{Secret: []byte("x"), SessionTTL: time.Minute, PendingTTL: time.Minute, Leeway: -time.Second},
		{Secret: []byte("x"), SessionTTL: time.Minute, PendingTTL: time.Minute, Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config rejection", i)
		}
	}
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	m := testManager(t)
	id := Identity{UserID: "u1", IsAdmin: true, UserType: "admin"}

	signed, err := m.Issue(id)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := m.Parse(signed)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Identity() != id {
		t.Fatalf("identity did not round-trip: %+v", claims.Identity())
	}
	if claims.Pending {
		t.Fatal("full session must not carry the pending marker")
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 30*time.Minute {
		t.Fatalf("unexpected session ttl %v", ttl)
	}
}

func TestIssuePendingMarksAssertion(t *testing.T) {
	m := testManager(t)

	signed, err := m.IssuePending(Identity{UserID: "u1", IsAdmin: true, UserType: "admin"})
	if err != nil {
		t.Fatalf("IssuePending failed: %v", err)
	}

	claims, err := m.Parse(signed)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !claims.Pending {
		t.Fatal("expected pending marker")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 5*time.Minute {
		t.Fatalf("unexpected pending ttl %v", ttl)
	}
}

func TestParseUniformFailures(t *testing.T) {
	m := testManager(t)
	signed, err := m.Issue(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	other, err := NewManager(Config{
		Secret:     []byte("a-completely-different-secret!!!!"),
		SessionTTL: 30 * time.Minute,
		PendingTTL: 5 * time.Minute,
		Issuer:     "keygate",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tampered := signed + "A"
	noSignature := signed[:strings.LastIndex(signed, ".")+1]

	for name, input := range map[string]string{
		"empty":    "",
		"garbage":  "not-a-token",
		"tampered": tampered,
		"unsigned": noSignature,
	} {
		if _, err := m.Parse(input); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}

	if _, err := other.Parse(signed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("wrong secret: expected ErrInvalid, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	foreign, err := NewManager(Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		SessionTTL: 30 * time.Minute,
		PendingTTL: 5 * time.Minute,
		Issuer:     "someone-else",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	signed, err := foreign.Issue(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	m := testManager(t)
	if _, err := m.Parse(signed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for foreign issuer, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		SessionTTL: time.Millisecond,
		PendingTTL: time.Millisecond,
		Issuer:     "keygate",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, err := m.Issue(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := m.Parse(signed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for expired token, got %v", err)
	}
}

func TestParseRejectsEmptySubject(t *testing.T) {
	m := testManager(t)
	signed, err := m.Issue(Identity{})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m.Parse(signed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty user id, got %v", err)
	}
}
