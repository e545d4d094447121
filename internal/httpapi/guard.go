package httpapi

import (
	"net/http"

	"forecourt/internal/auth"
	"forecourt/internal/tenant"
)

type forbiddenResponse struct {
	Error    string   `json:"error"`
	Required []string `json:"required"`
	Current  []string `json:"current"`
}

// requireAnyRole runs the role guard before the wrapped handler. A deny
// reports both the required and the caller's actual roles.
func (a *API) requireAnyRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		handle, ok := tenant.HandleFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusServiceUnavailable, "tenant unavailable")
			return
		}

		decision, err := a.guard.RequireAnyRole(r.Context(), handle, identity.UserID, roles...)
		if err != nil {
			a.log.Error().Err(err).Str("user_id", identity.UserID).Msg("role check failed")
			writeError(w, r, http.StatusInternalServerError, "authorization error")
			return
		}
		if !decision.Allowed {
			current := decision.Current
			if current == nil {
				current = []string{}
			}
			writeJSON(w, http.StatusForbidden, forbiddenResponse{
				Error:    "Insufficient permissions",
				Required: decision.Required,
				Current:  current,
			})
			return
		}
		next(w, r)
	}
}
