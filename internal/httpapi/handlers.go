package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"forecourt/internal/auth"
	"forecourt/internal/feature"
	"forecourt/internal/tenant"
)

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "forecourt-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "forecourt-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

type loginRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tenantID := strings.TrimSpace(req.TenantID)
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if tenantID == "" || email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "tenant_id, email and password are required")
		return
	}

	handle, err := a.tenants.Resolve(r.Context(), tenantID)
	if err != nil {
		a.writeTenantError(w, r, tenantID, err)
		return
	}

	user, err := a.users.FindByEmail(r.Context(), handle, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		a.log.Error().Err(err).Str("tenant_id", tenantID).Msg("user lookup failed")
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	if user.Status != auth.UserStatusActive {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := a.tokens.Issue(user.ID, user.Email, tenantID)
	if err != nil {
		a.log.Error().Err(err).Msg("token issuance failed")
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	a.log.Info().
		Str("event", "auth.login").
		Str("user_id", user.ID).
		Str("tenant_id", tenantID).
		Str("request_id", RequestIDFromContext(r.Context())).
		Msg("login")

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

type forceLogoutRequest struct {
	Email string `json:"email"`
}

func (a *API) handleForceLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req forceLogoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	if err := a.tokens.RevokeAllForUser(r.Context(), email, a.tokens.TokenTTL()); err != nil {
		a.log.Error().Err(err).Msg("revocation failed")
		writeError(w, r, http.StatusInternalServerError, "force logout failed")
		return
	}

	actor, _ := auth.IdentityFromContext(r.Context())
	a.log.Info().
		Str("event", "auth.force_logout").
		Str("actor_user_id", actor.UserID).
		Str("subject_email", email).
		Str("request_id", RequestIDFromContext(r.Context())).
		Msg("force logout")

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

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

	perms, err := a.features.EffectivePermissions(r.Context(), handle, identity.UserID)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", identity.UserID).Msg("permission resolution failed")
		writeError(w, r, http.StatusInternalServerError, "permission resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

type overrideRequest struct {
	Allowed any `json:"allowed"`
}

// handleUserFeatureOverride serves PUT /v1/users/{id}/features/{key}.
func (a *API) handleUserFeatureOverride(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "features" || parts[0] == "" || parts[2] == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	userID, featureKey := parts[0], parts[2]

	handle, ok := tenant.HandleFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusServiceUnavailable, "tenant unavailable")
		return
	}

	var req overrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	allowed := feature.DecodeAllowed(req.Allowed)
	if allowed == feature.Unset {
		writeError(w, r, http.StatusBadRequest, "allowed must be a boolean-like value")
		return
	}

	entry, err := a.featureStore.FindByKey(r.Context(), handle, featureKey)
	if err != nil {
		if errors.Is(err, feature.ErrUnknownFeature) {
			writeError(w, r, http.StatusNotFound, "unknown feature key")
			return
		}
		a.log.Error().Err(err).Str("feature_key", featureKey).Msg("feature lookup failed")
		writeError(w, r, http.StatusInternalServerError, "override save failed")
		return
	}

	override := feature.Override{UserID: userID, FeatureID: entry.ID, Allowed: allowed}
	if err := a.featureStore.SaveOverride(r.Context(), handle, override); err != nil {
		a.log.Error().Err(err).Str("feature_key", featureKey).Msg("override save failed")
		writeError(w, r, http.StatusInternalServerError, "override save failed")
		return
	}

	actor, _ := auth.IdentityFromContext(r.Context())
	a.log.Info().
		Str("event", "feature.override.saved").
		Str("actor_user_id", actor.UserID).
		Str("subject_user_id", userID).
		Str("feature_key", featureKey).
		Bool("allowed", allowed == feature.Allowed).
		Str("request_id", RequestIDFromContext(r.Context())).
		Msg("feature override saved")

	writeJSON(w, http.StatusOK, map[string]any{
		"feature_key": entry.Key,
		"allowed":     allowed == feature.Allowed,
	})
}
