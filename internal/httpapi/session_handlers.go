package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"nusalink.id/internal/audit"
	"nusalink.id/internal/authn"
	"nusalink.id/internal/rbac"
	"nusalink.id/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	UnitID string `json:"unit_id,omitempty"`
}

func toProfileResponse(p *session.Profile) profileResponse {
	return profileResponse{
		ID:     p.ID,
		Name:   p.Name,
		Email:  p.Email,
		Role:   string(p.Role),
		UnitID: p.UnitID,
	}
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
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	store, err := a.sessionStore(w, r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session storage unavailable")
		return
	}

	profile, err := a.manager.Login(r.Context(), store, req.Email, req.Password)
	if err != nil {
		var authErr *authn.AuthError
		if errors.As(err, &authErr) {
			msg := authErr.Message
			if msg == "" {
				msg = "login rejected"
			}
			writeError(w, r, http.StatusUnauthorized, msg)
			return
		}
		writeError(w, r, http.StatusBadGateway, "backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	store, err := a.sessionStore(w, r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session storage unavailable")
		return
	}
	ctx := r.Context()
	if profile := store.CurrentUser(ctx); profile != nil {
		ctx = audit.WithActor(ctx, profile.ID)
	}
	if err := a.manager.Logout(ctx, store); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	store, err := a.sessionStore(w, r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session storage unavailable")
		return
	}
	profile := store.CurrentUser(r.Context())
	if profile == nil {
		writeError(w, r, http.StatusUnauthorized, "not logged in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          toProfileResponse(profile),
		"impersonating": store.HasBackup(r.Context()),
	})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	store, err := a.sessionStore(w, r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session storage unavailable")
		return
	}
	ctx := r.Context()
	profile := store.CurrentUser(ctx)
	if profile == nil {
		writeError(w, r, http.StatusUnauthorized, "not logged in")
		return
	}

	if profile.Role == rbac.RoleSuperAdmin {
		writeJSON(w, http.StatusOK, map[string]any{
			"role":        string(profile.Role),
			"super_admin": true,
			"permissions": map[string]any{},
		})
		return
	}

	matrix, ok := store.CachedMatrix(ctx)
	if !ok {
		matrix = rbac.DefaultMatrix()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        string(profile.Role),
		"super_admin": false,
		"permissions": matrix[profile.Role],
	})
}

func (a *API) handleAuthzCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	resource := rbac.Resource(strings.TrimSpace(r.URL.Query().Get("resource")))
	action := rbac.Action(strings.TrimSpace(r.URL.Query().Get("action")))
	if resource == "" || action == "" {
		writeError(w, r, http.StatusBadRequest, "resource and action are required")
		return
	}

	store, err := a.sessionStore(w, r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session storage unavailable")
		return
	}
	ctx := r.Context()
	profile := store.CurrentUser(ctx)
	if profile == nil {
		writeError(w, r, http.StatusUnauthorized, "not logged in")
		return
	}

	authz := rbac.NewAuthorizer(store.MatrixSource(ctx))
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed": authz.HasPermission(profile.Role, resource, action),
	})
}

// handleImpersonate routes /v1/session/impersonate/{id} and
// /v1/session/impersonate/stop.
func (a *API) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	target := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/session/impersonate/"), "/")
	if target == "" || strings.Contains(target, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	store, err := a.sessionStore(w, r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session storage unavailable")
		return
	}

	if target == "stop" {
		a.stopImpersonation(w, r, store)
		return
	}
	a.startImpersonation(w, r, store, target)
}

func (a *API) startImpersonation(w http.ResponseWriter, r *http.Request, store *session.Store, target string) {
	ctx := r.Context()
	profile := store.CurrentUser(ctx)
	if profile == nil {
		writeError(w, r, http.StatusUnauthorized, "not logged in")
		return
	}

	authz := rbac.NewAuthorizer(store.MatrixSource(ctx))
	if !authz.HasPermission(profile.Role, rbac.ResourceSettingsUser, rbac.ActionImpersonate) {
		writeError(w, r, http.StatusForbidden, "impersonation not permitted")
		return
	}

	ctx = audit.WithActor(ctx, profile.ID)
	impersonated, err := a.manager.Impersonate(ctx, store, target)
	if err != nil {
		switch {
		case errors.Is(err, authn.ErrNotAuthenticated):
			writeError(w, r, http.StatusUnauthorized, "not logged in")
		default:
			var authErr *authn.AuthError
			if errors.As(err, &authErr) {
				msg := authErr.Message
				if msg == "" {
					msg = "impersonation rejected"
				}
				writeError(w, r, http.StatusBadGateway, msg)
				return
			}
			writeError(w, r, http.StatusBadGateway, "backend unavailable")
		}
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(impersonated))
}

func (a *API) stopImpersonation(w http.ResponseWriter, r *http.Request, store *session.Store) {
	ctx := r.Context()
	if profile := store.CurrentUser(ctx); profile != nil {
		ctx = audit.WithActor(ctx, profile.ID)
	}
	restored, err := a.manager.StopImpersonation(ctx, store)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "restore failed")
		return
	}
	if !restored {
		writeError(w, r, http.StatusConflict, "no impersonation to stop")
		return
	}
	profile := store.CurrentUser(ctx)
	if profile == nil {
		// Backup existed but held no profile; treat as a cleared session.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}
