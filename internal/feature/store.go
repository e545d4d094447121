package feature

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"forecourt/internal/tenant"
)

// ErrUnknownFeature indicates a feature key absent from the tenant's catalog.
var ErrUnknownFeature = errors.New("feature: unknown feature key")

// Store reads the feature catalog and per-user overrides out of a tenant's
// isolated store.
type Store interface {
	Catalog(ctx context.Context, h *tenant.Handle) ([]CatalogEntry, error)
	FindByKey(ctx context.Context, h *tenant.Handle, key string) (CatalogEntry, error)
	OverridesForUser(ctx context.Context, h *tenant.Handle, userID string) ([]Override, error)
	SaveOverride(ctx context.Context, h *tenant.Handle, o Override) error
}

// PGStore implements Store on a tenant's pgx pool. The allowed column is
// nullable text and historically holds booleans, "true"/"false" strings, and
// 1/0, so rows are scanned loose and passed through DecodeAllowed.
type PGStore struct{}

var _ Store = (*PGStore)(nil)

func NewPGStore() *PGStore { return &PGStore{} }

func (s *PGStore) Catalog(ctx context.Context, h *tenant.Handle) ([]CatalogEntry, error) {
	rows, err := h.Pool().Query(ctx,
		`select id, feature_key, label, grouping, default_enabled
		 from feature_catalog order by grouping, feature_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.ID, &e.Key, &e.Label, &e.Group, &e.DefaultEnabled); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PGStore) FindByKey(ctx context.Context, h *tenant.Handle, key string) (CatalogEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return CatalogEntry{}, ErrUnknownFeature
	}
	row := h.Pool().QueryRow(ctx,
		`select id, feature_key, label, grouping, default_enabled
		 from feature_catalog where feature_key=$1`, key)
	var e CatalogEntry
	if err := row.Scan(&e.ID, &e.Key, &e.Label, &e.Group, &e.DefaultEnabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CatalogEntry{}, ErrUnknownFeature
		}
		return CatalogEntry{}, err
	}
	return e, nil
}

func (s *PGStore) OverridesForUser(ctx context.Context, h *tenant.Handle, userID string) ([]Override, error) {
	rows, err := h.Pool().Query(ctx,
		`select user_id, feature_id, allowed from user_feature_overrides where user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var (
			o   Override
			raw *string
		)
		if err := rows.Scan(&o.UserID, &o.FeatureID, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			o.Allowed = Unset
		} else {
			o.Allowed = DecodeAllowed(*raw)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// SaveOverride replaces the existing (user, feature) row instead of adding a
// duplicate.
func (s *PGStore) SaveOverride(ctx context.Context, h *tenant.Handle, o Override) error {
	if strings.TrimSpace(o.UserID) == "" || strings.TrimSpace(o.FeatureID) == "" {
		return errors.New("user id and feature id are required")
	}
	_, err := h.Pool().Exec(ctx,
		`insert into user_feature_overrides(user_id, feature_id, allowed)
		 values($1,$2,$3)
		 on conflict (user_id, feature_id) do update set allowed = excluded.allowed`,
		o.UserID, o.FeatureID, o.Allowed.String(),
	)
	return err
}
