package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"forecourt/internal/obs"
)

// Handle is a live, reusable connection to one tenant's isolated store.
// Exactly one handle exists per tenant id at a time; the Registry owns its
// lifecycle.
type Handle struct {
	TenantID         string
	OrganizationName string

	pool *pgxpool.Pool

	// lastUsed is guarded by the owning registry's mutex.
	lastUsed time.Time
}

// NewHandle wraps an established pool. Outside the registry this is only
// useful for tests.
func NewHandle(tenantID string, pool *pgxpool.Pool) *Handle {
	return &Handle{TenantID: tenantID, pool: pool}
}

// Pool exposes the underlying connection pool for tenant-scoped queries.
func (h *Handle) Pool() *pgxpool.Pool { return h.pool }

// Dialer establishes a connection pool from a tenant's connection descriptor.
type Dialer func(ctx context.Context, descriptor string) (*pgxpool.Pool, error)

// PGDialer opens a pgx pool and verifies connectivity with a ping.
func PGDialer(ctx context.Context, descriptor string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Registry caches tenant handles and guarantees that concurrent resolves for
// the same uncached tenant perform exactly one connection establishment.
type Registry struct {
	dir  Directory
	dial Dialer
	log  zerolog.Logger

	idleWindow     time.Duration
	connectTimeout time.Duration
	maxRetries     int
	retryBackoff   time.Duration

	// failureLog throttles connection-failure logging while a tenant's
	// backing store stays down.
	failureLog *rate.Limiter

	group singleflight.Group

	mu      sync.Mutex
	handles map[string]*Handle

	now  func() time.Time
	done chan struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleWindow sets how long an unused handle survives before eviction.
func WithIdleWindow(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleWindow = d
		}
	}
}

// WithConnectTimeout bounds each establishment attempt.
func WithConnectTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.connectTimeout = d
		}
	}
}

// WithConnectRetries sets how many times establishment is retried before the
// failure surfaces.
func WithConnectRetries(n int) RegistryOption {
	return func(r *Registry) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between establishment attempts.
func WithRetryBackoff(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.retryBackoff = d
		}
	}
}

// WithRegistryClock overrides the time source (useful for tests).
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a registry over the given directory and dialer.
func NewRegistry(dir Directory, dial Dialer, log zerolog.Logger, opts ...RegistryOption) (*Registry, error) {
	if dir == nil {
		return nil, errors.New("tenant directory is required")
	}
	if dial == nil {
		dial = PGDialer
	}
	r := &Registry{
		dir:            dir,
		dial:           dial,
		log:            log,
		idleWindow:     30 * time.Minute,
		connectTimeout: 5 * time.Second,
		maxRetries:     2,
		retryBackoff:   200 * time.Millisecond,
		failureLog:     rate.NewLimiter(rate.Every(30*time.Second), 3),
		handles:        make(map[string]*Handle),
		now:            time.Now,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.sweepLoop()
	return r, nil
}

// Resolve returns the cached handle for tenantID or establishes one. Only
// active tenants resolve; a failed establishment is never cached, so a later
// call attempts a fresh connection.
func (r *Registry) Resolve(ctx context.Context, tenantID string) (*Handle, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	if h, ok := r.handles[tenantID]; ok {
		h.lastUsed = r.now()
		r.mu.Unlock()
		obs.TenantResolve("hit")
		return h, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(tenantID, func() (any, error) {
		// Re-check under the flight: another caller may have just finished.
		r.mu.Lock()
		if h, ok := r.handles[tenantID]; ok {
			r.mu.Unlock()
			return h, nil
		}
		r.mu.Unlock()
		return r.establish(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	h := v.(*Handle)

	// Bump last-used at hand-out so the sweeper cannot evict a handle the
	// caller has not touched yet.
	r.mu.Lock()
	h.lastUsed = r.now()
	r.mu.Unlock()
	return h, nil
}

func (r *Registry) establish(ctx context.Context, tenantID string) (*Handle, error) {
	t, err := r.dir.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.TenantResolve("not_found")
			return nil, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
		}
		return nil, fmt.Errorf("tenant lookup: %w", err)
	}
	if t.Status != StatusActive {
		obs.TenantResolve("suspended")
		return nil, fmt.Errorf("%w: %s", ErrSuspended, tenantID)
	}

	pool, err := r.connectWithRetry(ctx, t)
	if err != nil {
		obs.TenantResolve("connect_failed")
		return nil, err
	}

	h := &Handle{
		TenantID:         t.ID,
		OrganizationName: t.OrganizationName,
		pool:             pool,
		lastUsed:         r.now(),
	}
	r.mu.Lock()
	r.handles[t.ID] = h
	r.mu.Unlock()
	obs.TenantResolve("established")
	obs.TenantHandleOpened()
	return h, nil
}

func (r *Registry) connectWithRetry(ctx context.Context, t Tenant) (*pgxpool.Pool, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: tenant %s: %v", ErrConnectionFailed, t.ID, ctx.Err())
			}
		}
		dialCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
		pool, err := r.dial(dialCtx, t.ConnectionDescriptor)
		cancel()
		if err == nil {
			return pool, nil
		}
		lastErr = err
		obs.TenantConnectFailure()
		if r.failureLog.Allow() {
			r.log.Warn().
				Str("tenant_id", t.ID).
				Int("attempt", attempt+1).
				Err(err).
				Msg("tenant connection failed")
		}
	}
	return nil, fmt.Errorf("%w: tenant %s: %v", ErrConnectionFailed, t.ID, lastErr)
}

func (r *Registry) sweepLoop() {
	interval := r.idleWindow / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepIdle()
		case <-r.done:
			return
		}
	}
}

// sweepIdle closes handles unused for longer than the idle window. Victims are
// removed from the map under the lock, so a concurrent Resolve either gets the
// handle before removal (and bumps lastUsed) or establishes a fresh one.
func (r *Registry) sweepIdle() {
	now := r.now()
	var victims []*Handle
	r.mu.Lock()
	for id, h := range r.handles {
		if now.Sub(h.lastUsed) > r.idleWindow {
			delete(r.handles, id)
			victims = append(victims, h)
		}
	}
	r.mu.Unlock()

	for _, h := range victims {
		// Close waits for in-flight queries on already handed-out handles.
		h.pool.Close()
		obs.TenantHandleClosed()
		r.log.Debug().Str("tenant_id", h.TenantID).Msg("evicted idle tenant handle")
	}
}

// Close stops the sweeper and closes every live handle.
func (r *Registry) Close() {
	select {
	case <-r.done:
		return
	default:
		close(r.done)
	}

	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for id, h := range r.handles {
		delete(r.handles, id)
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.pool.Close()
		obs.TenantHandleClosed()
	}
}
