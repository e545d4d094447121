package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory resolves tenant ids to directory records.
type Directory interface {
	Get(ctx context.Context, id string) (Tenant, error)
}

// PGDirectory reads the tenants table from the control-plane database.
type PGDirectory struct {
	pool *pgxpool.Pool
}

var _ Directory = (*PGDirectory)(nil)

// NewPGDirectory constructs a directory over the given control-plane pool.
func NewPGDirectory(pool *pgxpool.Pool) (*PGDirectory, error) {
	if pool == nil {
		return nil, errors.New("control-plane pool is required")
	}
	return &PGDirectory{pool: pool}, nil
}

func (d *PGDirectory) Get(ctx context.Context, id string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, ErrNotFound
	}
	row := d.pool.QueryRow(ctx,
		`select id, organization_name, connection_descriptor, status, created_at, updated_at
		 from tenants where id=$1`, id)
	var t Tenant
	if err := row.Scan(&t.ID, &t.OrganizationName, &t.ConnectionDescriptor, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	return t, nil
}
