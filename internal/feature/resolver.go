package feature

import (
	"context"
	"errors"
	"strings"

	"forecourt/internal/tenant"
)

// Resolver merges the catalog with per-user overrides into the effective
// permission set. It is a pure read over its two inputs and is safe to call
// repeatedly within one request.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("feature store is required")
	}
	return &Resolver{store: store}, nil
}

// EffectivePermissions computes the caller's allow/deny decision for every
// catalog entry. An override wins over the catalog default unless it decodes
// to Unset; overrides for features no longer in the catalog are ignored.
func (r *Resolver) EffectivePermissions(ctx context.Context, h *tenant.Handle, userID string) ([]EffectivePermission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	catalog, err := r.store.Catalog(ctx, h)
	if err != nil {
		return nil, err
	}
	overrides, err := r.store.OverridesForUser(ctx, h, userID)
	if err != nil {
		return nil, err
	}

	byFeature := make(map[string]Override, len(overrides))
	for _, o := range overrides {
		byFeature[o.FeatureID] = o
	}

	result := make([]EffectivePermission, 0, len(catalog))
	for _, entry := range catalog {
		allowed := entry.DefaultEnabled
		if o, ok := byFeature[entry.ID]; ok {
			switch o.Allowed {
			case Allowed:
				allowed = true
			case Denied:
				allowed = false
			}
		}
		result = append(result, EffectivePermission{
			FeatureKey:     entry.Key,
			Allowed:        allowed,
			DefaultEnabled: entry.DefaultEnabled,
		})
	}
	return result, nil
}

// IsAllowed answers the single-feature form of the same question. It filters
// EffectivePermissions so the two entry points cannot disagree.
func (r *Resolver) IsAllowed(ctx context.Context, h *tenant.Handle, userID, featureKey string) (bool, error) {
	featureKey = strings.TrimSpace(featureKey)
	if featureKey == "" {
		return false, errors.New("feature key is required")
	}
	perms, err := r.EffectivePermissions(ctx, h, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.FeatureKey == featureKey {
			return p.Allowed, nil
		}
	}
	return false, nil
}
