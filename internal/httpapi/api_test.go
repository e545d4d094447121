package httpapi

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"forecourt/internal/auth"
	"forecourt/internal/feature"
	"forecourt/internal/rbac"
	"forecourt/internal/tenant"
)

type fakeResolver struct {
	handles map[string]*tenant.Handle
	errs    map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, tenantID string) (*tenant.Handle, error) {
	if err, ok := f.errs[tenantID]; ok {
		return nil, err
	}
	if h, ok := f.handles[tenantID]; ok {
		return h, nil
	}
	return nil, tenant.ErrNotFound
}

type fakeUserStore struct {
	users map[string]auth.User
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, h *tenant.Handle, email string) (auth.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return auth.User{}, auth.ErrNotFound
}

type fakeFeatureStore struct {
	catalog   []feature.CatalogEntry
	overrides map[string][]feature.Override
	saved     []feature.Override
}

func (f *fakeFeatureStore) Catalog(ctx context.Context, h *tenant.Handle) ([]feature.CatalogEntry, error) {
	return f.catalog, nil
}

func (f *fakeFeatureStore) FindByKey(ctx context.Context, h *tenant.Handle, key string) (feature.CatalogEntry, error) {
	for _, e := range f.catalog {
		if e.Key == key {
			return e, nil
		}
	}
	return feature.CatalogEntry{}, feature.ErrUnknownFeature
}

func (f *fakeFeatureStore) OverridesForUser(ctx context.Context, h *tenant.Handle, userID string) ([]feature.Override, error) {
	return f.overrides[userID], nil
}

func (f *fakeFeatureStore) SaveOverride(ctx context.Context, h *tenant.Handle, o feature.Override) error {
	f.saved = append(f.saved, o)
	return nil
}

type fakeRoleStore struct {
	roles map[string][]string
}

func (f *fakeRoleStore) RolesForUser(ctx context.Context, h *tenant.Handle, userID string) ([]string, error) {
	return f.roles[userID], nil
}

type testEnv struct {
	api      *API
	tokens   *auth.TokenService
	tenants  *fakeResolver
	users    *fakeUserStore
	features *fakeFeatureStore
	roles    *fakeRoleStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenService("unit-test-secret-0123456789", auth.NewMemoryRevocations())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	tenants := &fakeResolver{
		handles: map[string]*tenant.Handle{
			"t-1": tenant.NewHandle("t-1", nil),
		},
		errs: map[string]error{
			"t-suspended": tenant.ErrSuspended,
			"t-down":      tenant.ErrConnectionFailed,
		},
	}
	users := &fakeUserStore{
		users: map[string]auth.User{
			"alice@station.example": {
				ID:           "u-alice",
				Email:        "alice@station.example",
				PasswordHash: string(hash),
				Status:       auth.UserStatusActive,
			},
			"frozen@station.example": {
				ID:           "u-frozen",
				Email:        "frozen@station.example",
				PasswordHash: string(hash),
				Status:       auth.UserStatusDisabled,
			},
		},
	}
	features := &fakeFeatureStore{
		catalog: []feature.CatalogEntry{
			{ID: "f-1", Key: "dashboard", Label: "Dashboard", Group: "core", DefaultEnabled: true},
			{ID: "f-2", Key: "reports", Label: "Reports", Group: "analytics", DefaultEnabled: false},
		},
		overrides: map[string][]feature.Override{
			"u-alice": {{UserID: "u-alice", FeatureID: "f-2", Allowed: feature.Allowed}},
		},
	}
	roles := &fakeRoleStore{
		roles: map[string][]string{
			"u-alice": {"manager"},
			"u-dave":  {"dsm"},
		},
	}

	resolver, err := feature.NewResolver(features)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	guard, err := rbac.NewGuard(roles, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	api := New(Options{
		Tokens:       tokens,
		Tenants:      tenants,
		Features:     resolver,
		FeatureStore: features,
		Guard:        guard,
		Users:        users,
		Version:      "test",
		Log:          zerolog.Nop(),
	})
	return &testEnv{
		api:      api,
		tokens:   tokens,
		tenants:  tenants,
		users:    users,
		features: features,
		roles:    roles,
	}
}

func (e *testEnv) issue(t *testing.T, userID, email, tenantID string) string {
	t.Helper()
	token, _, err := e.tokens.Issue(userID, email, tenantID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}
