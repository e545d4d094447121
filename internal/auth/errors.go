package auth

import "errors"

var (
	// ErrInvalidToken indicates a malformed, unsigned, or expired token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrSessionRevoked indicates a structurally valid token whose subject has
	// an active force-logout entry.
	ErrSessionRevoked = errors.New("auth: session revoked")
	// ErrInvalidCredentials indicates a failed email/password login.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrNotFound           = errors.New("auth: not found")
)
