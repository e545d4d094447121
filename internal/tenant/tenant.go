package tenant

import (
	"errors"
	"time"
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

var (
	// ErrNotFound indicates the tenant id has no directory record.
	ErrNotFound = errors.New("tenant: not found")
	// ErrSuspended indicates the tenant exists but is not resolvable.
	ErrSuspended = errors.New("tenant: suspended")
	// ErrConnectionFailed indicates connection establishment to the tenant's
	// store failed after retries.
	ErrConnectionFailed = errors.New("tenant: connection failed")
)

// Tenant is a directory record for one isolated customer organization. Rows
// are created at provisioning time and are read-only to this layer.
type Tenant struct {
	ID                   string    `json:"id"`
	OrganizationName     string    `json:"organization_name"`
	ConnectionDescriptor string    `json:"-"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
