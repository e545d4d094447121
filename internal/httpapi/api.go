package httpapi

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"forecourt/internal/auth"
	"forecourt/internal/feature"
	"forecourt/internal/obs"
	"forecourt/internal/rbac"
	"forecourt/internal/tenant"
)

// TenantResolver is the part of the tenant registry the HTTP layer needs.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (*tenant.Handle, error)
}

// ReadyProbe reports readiness by pinging the control-plane database.
type ReadyProbe struct {
	Pool *pgxpool.Pool
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Pool == nil {
		return nil
	}
	return rp.Pool.Ping(ctx)
}

// Options collects the collaborators the API needs.
type Options struct {
	Tokens       *auth.TokenService
	Tenants      TenantResolver
	Features     *feature.Resolver
	FeatureStore feature.Store
	Guard        *rbac.Guard
	Users        auth.UserStore
	Probe        ReadyProbe
	Version      string
	Log          zerolog.Logger

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	tokens       *auth.TokenService
	tenants      TenantResolver
	features     *feature.Resolver
	featureStore feature.Store
	guard        *rbac.Guard
	users        auth.UserStore
	probe        ReadyProbe
	version      string
	log          zerolog.Logger

	rateLimitPerSecond int
	rateLimitBurst     int
	maxBodyBytes       int64
}

// New wires routes over the given collaborators.
func New(opts Options) *API {
	a := &API{
		mux:                http.NewServeMux(),
		tokens:             opts.Tokens,
		tenants:            opts.Tenants,
		features:           opts.Features,
		featureStore:       opts.FeatureStore,
		guard:              opts.Guard,
		users:              opts.Users,
		probe:              opts.Probe,
		version:            opts.Version,
		log:                opts.Log,
		rateLimitPerSecond: opts.RateLimitPerSecond,
		rateLimitBurst:     opts.RateLimitBurst,
		maxBodyBytes:       opts.MaxBodyBytes,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/force-logout",
		a.requireAnyRole(a.handleForceLogout, "super_admin"))
	a.mux.HandleFunc("/v1/me/permissions", a.handleMyPermissions)
	a.mux.HandleFunc("/v1/users/",
		a.requireAnyRole(a.handleUserFeatureOverride, "super_admin", "manager"))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withIdentity(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateLimitBurst, a.rateLimitPerSecond)
	h = Logging(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
