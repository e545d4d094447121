package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...TokenOption) (*TokenService, *MemoryRevocations) {
	t.Helper()
	revocations := NewMemoryRevocations()
	svc, err := NewTokenService("test-secret", revocations, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc, revocations
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	token, expiresAt, err := svc.Issue("u-42", "Clerk@Station.example", "t-7")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	identity, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UserID != "u-42" {
		t.Fatalf("unexpected user id: %s", identity.UserID)
	}
	if identity.Email != "clerk@station.example" {
		t.Fatalf("email was not normalized: %s", identity.Email)
	}
	if identity.TenantID != "t-7" {
		t.Fatalf("unexpected tenant id: %s", identity.TenantID)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)

	for _, token := range []string{"", "   ", "not.a.token", "a.b"} {
		if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc, _ := newTestService(t)

	token, _, err := svc.Issue("u-1", "a@b.example", "t-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := svc.Verify(context.Background(), tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered signature, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc, _ := newTestService(t)
	other, err := NewTokenService("different-secret", NewMemoryRevocations())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, _, err := other.Issue("u-1", "a@b.example", "t-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	current := time.Now().UTC()
	svc, _ := newTestService(t,
		WithTokenTTL(time.Hour),
		WithClock(func() time.Time { return current }),
	)

	token, _, err := svc.Issue("u-1", "a@b.example", "t-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestRevokedTokenFailsUntilRevocationExpires(t *testing.T) {
	current := time.Now().UTC()
	svc, _ := newTestService(t,
		WithTokenTTL(time.Hour),
		WithClock(func() time.Time { return current }),
	)

	token, _, err := svc.Issue("u-1", "clerk@station.example", "t-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(context.Background(), token); err != nil {
		t.Fatalf("pre-revocation Verify: %v", err)
	}

	if err := svc.RevokeAllForUser(context.Background(), "Clerk@Station.example", 30*time.Minute); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	// Structurally valid, but blacklisted: a distinct failure from "invalid".
	_, err = svc.Verify(context.Background(), token)
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	// TTL is clamped to the token lifetime: 30m in the future the revocation
	// still holds even though a shorter TTL was requested.
	current = current.Add(31 * time.Minute)
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected revocation to outlive requested TTL, got %v", err)
	}
}

func TestRevocationExpiryRestoresVerification(t *testing.T) {
	current := time.Now().UTC()
	clock := func() time.Time { return current }

	revocations := NewMemoryRevocations()
	revocations.now = clock
	svc, err := NewTokenService("test-secret", revocations,
		WithTokenTTL(10*24*time.Hour),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, _, err := svc.Issue("u-1", "clerk@station.example", "t-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.RevokeAllForUser(context.Background(), "clerk@station.example", 0); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	// Once the revocation window passes, freshly issued tokens verify again.
	current = current.Add(10*24*time.Hour + time.Minute)
	fresh, _, err := svc.Issue("u-1", "clerk@station.example", "t-1")
	if err != nil {
		t.Fatalf("Issue after revocation expiry: %v", err)
	}
	if _, err := svc.Verify(context.Background(), fresh); err != nil {
		t.Fatalf("expected verification to succeed after revocation expiry, got %v", err)
	}
}

func TestIssueValidatesInputs(t *testing.T) {
	svc, _ := newTestService(t)

	cases := [][3]string{
		{"", "a@b.example", "t-1"},
		{"u-1", "", "t-1"},
		{"u-1", "a@b.example", ""},
	}
	for _, c := range cases {
		if _, _, err := svc.Issue(c[0], c[1], c[2]); err == nil {
			t.Fatalf("Issue(%q,%q,%q): expected error", c[0], c[1], c[2])
		}
	}
}
