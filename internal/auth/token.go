package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 7 * 24 * time.Hour

// Identity is the verified content of a token.
type Identity struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	TenantID  string    `json:"tenantId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims is the wire shape of an identity token.
type Claims struct {
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed identity tokens. Verification is
// two-stage: cryptographic validity first, then the revocation list. A valid
// signature alone is not sufficient.
type TokenService struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	revocations RevocationStore
	now         func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
	}
}

// WithTokenTTL configures the fixed token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with HS256.
func NewTokenService(secret string, revocations RevocationStore, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth secret is required")
	}
	if revocations == nil {
		return nil, errors.New("revocation store is required")
	}
	s := &TokenService{
		secret:      []byte(secret),
		issuer:      "forecourt",
		ttl:         defaultTokenTTL,
		revocations: revocations,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TokenTTL reports the fixed lifetime of issued tokens.
func (s *TokenService) TokenTTL() time.Duration { return s.ttl }

// Issue signs a token for the given user within the given tenant.
func (s *TokenService) Issue(userID, email, tenantID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(strings.ToLower(email))
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || email == "" || tenantID == "" {
		return "", time.Time{}, errors.New("userID, email and tenantID are required")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email:    email,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry, then consults the revocation list by the
// token's embedded email. A revoked session fails with ErrSessionRevoked even
// though the signature is valid, so callers can tell "log in again" apart from
// "never logged in".
func (s *TokenService) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if err := s.validateClaims(claims); err != nil {
		return Identity{}, ErrInvalidToken
	}

	entry, found, err := s.revocations.Get(ctx, claims.Email)
	if err != nil {
		return Identity{}, fmt.Errorf("revocation lookup: %w", err)
	}
	if found && entry.Reason == ReasonForceLogout && s.now().Before(entry.ExpiresAt) {
		return Identity{}, ErrSessionRevoked
	}

	return Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		TenantID:  claims.TenantID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *TokenService) validateClaims(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.Email) == "" {
		return errors.New("email missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

// RevokeAllForUser blacklists every outstanding token for the given email.
// The entry lives at least as long as the token lifetime, otherwise a
// pre-revocation token could outlive the revocation window.
func (s *TokenService) RevokeAllForUser(ctx context.Context, email string, ttl time.Duration) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return errors.New("email is required")
	}
	if ttl < s.ttl {
		ttl = s.ttl
	}
	entry := RevocationEntry{
		Email:     email,
		Reason:    ReasonForceLogout,
		ExpiresAt: s.now().UTC().Add(ttl),
	}
	return s.revocations.Put(ctx, entry)
}
