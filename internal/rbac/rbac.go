package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"forecourt/internal/tenant"
)

// ErrInsufficientPermission indicates the caller holds none of the required
// roles within the tenant.
var ErrInsufficientPermission = errors.New("rbac: insufficient permission")

// Store loads role assignments from a tenant's isolated store.
type Store interface {
	RolesForUser(ctx context.Context, h *tenant.Handle, userID string) ([]string, error)
}

// PGStore reads the user_roles table through a tenant handle.
type PGStore struct{}

var _ Store = (*PGStore)(nil)

func NewPGStore() *PGStore { return &PGStore{} }

func (s *PGStore) RolesForUser(ctx context.Context, h *tenant.Handle, userID string) ([]string, error) {
	rows, err := h.Pool().Query(ctx,
		`select role from user_roles where user_id=$1 order by role`, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Decision is the outcome of a role check. A deny carries both role sets so
// the caller can render an actionable message.
type Decision struct {
	Allowed  bool
	Bypassed bool
	Required []string
	Current  []string
}

// Guard enforces that an identity holds one of a required role set within its
// tenant. The bypass identity and flag are an intentional operational escape
// hatch; every use is logged.
type Guard struct {
	store        Store
	log          zerolog.Logger
	bypassUserID string
	bypassAll    bool
}

// GuardOption configures Guard behavior.
type GuardOption func(*Guard)

// WithBypassUser designates a fixed operational account that skips role checks.
func WithBypassUser(userID string) GuardOption {
	return func(g *Guard) {
		g.bypassUserID = strings.TrimSpace(userID)
	}
}

// WithBypassAll disables role enforcement entirely. Operator-enabled only.
func WithBypassAll(enabled bool) GuardOption {
	return func(g *Guard) {
		g.bypassAll = enabled
	}
}

// NewGuard constructs a Guard over the given role store.
func NewGuard(store Store, log zerolog.Logger, opts ...GuardOption) (*Guard, error) {
	if store == nil {
		return nil, errors.New("role store is required")
	}
	g := &Guard{store: store, log: log}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RequireAnyRole loads the caller's role assignments within the tenant and
// checks for a non-empty intersection with allowedRoles.
func (g *Guard) RequireAnyRole(ctx context.Context, h *tenant.Handle, userID string, allowedRoles ...string) (Decision, error) {
	required := normalizeRoles(allowedRoles)
	if len(required) == 0 {
		return Decision{}, errors.New("at least one allowed role is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{Allowed: false, Required: required}, nil
	}

	if g.bypassAll || (g.bypassUserID != "" && userID == g.bypassUserID) {
		g.log.Warn().
			Str("event", "rbac.bypass").
			Str("user_id", userID).
			Strs("required", required).
			Bool("bypass_all", g.bypassAll).
			Msg("role check bypassed")
		return Decision{Allowed: true, Bypassed: true, Required: required}, nil
	}

	roles, err := g.store.RolesForUser(ctx, h, userID)
	if err != nil {
		return Decision{}, err
	}
	current := normalizeRoles(roles)

	for _, have := range current {
		for _, want := range required {
			if have == want {
				return Decision{Allowed: true, Required: required, Current: current}, nil
			}
		}
	}
	return Decision{Allowed: false, Required: required, Current: current}, nil
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
