package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"forecourt/internal/auth"
	"forecourt/internal/obs"
	"forecourt/internal/tenant"
)

const (
	authHeader  = "Authorization"
	bearer      = "Bearer "
	tokenCookie = "token"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withIdentity verifies the caller's token, resolves the tenant handle, and
// attaches both to the request context. Authentication failures (401), tenant
// failures (503), and authorization failures (403, see the guard) stay
// distinct so clients can react correctly.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractToken(r)
		if !ok {
			obs.AuthFailure("missing_token")
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		identity, err := a.tokens.Verify(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrSessionRevoked):
				obs.AuthFailure("revoked")
				writeError(w, r, http.StatusUnauthorized, "session expired, log in again")
			case errors.Is(err, auth.ErrInvalidToken):
				obs.AuthFailure("invalid_token")
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			default:
				a.log.Error().Err(err).Msg("token verification failed")
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		// A signed token without a tenant is a structural violation; reject
		// before any tenant resolution is attempted.
		if strings.TrimSpace(identity.TenantID) == "" {
			obs.AuthFailure("invalid_token")
			writeError(w, r, http.StatusUnauthorized, "malformed token")
			return
		}

		handle, err := a.tenants.Resolve(r.Context(), identity.TenantID)
		if err != nil {
			a.writeTenantError(w, r, identity.TenantID, err)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = tenant.ContextWithHandle(ctx, handle)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeTenantError maps registry failures onto the "tenant unavailable"
// surface, never conflating them with authentication failures.
func (a *API) writeTenantError(w http.ResponseWriter, r *http.Request, tenantID string, err error) {
	a.log.Error().Err(err).Str("tenant_id", tenantID).Msg("tenant resolution failed")
	switch {
	case errors.Is(err, tenant.ErrSuspended):
		writeError(w, r, http.StatusServiceUnavailable, "tenant suspended")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "tenant unavailable")
	}
}

// extractToken prefers the token cookie over the Authorization header when
// both are present.
func extractToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(tokenCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
