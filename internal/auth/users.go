package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"forecourt/internal/tenant"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an account inside one tenant's store.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Status       string
}

// UserStore looks accounts up inside a resolved tenant.
type UserStore interface {
	FindByEmail(ctx context.Context, h *tenant.Handle, email string) (User, error)
}

// PGUserStore reads the users table through a tenant handle.
type PGUserStore struct{}

var _ UserStore = (*PGUserStore)(nil)

func NewPGUserStore() *PGUserStore { return &PGUserStore{} }

func (s *PGUserStore) FindByEmail(ctx context.Context, h *tenant.Handle, email string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return User{}, ErrNotFound
	}
	row := h.Pool().QueryRow(ctx,
		`select id, email, password_hash, status from users where email=$1`, email)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}
