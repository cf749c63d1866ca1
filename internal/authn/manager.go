// Package authn drives the session state machine: anonymous to
// authenticated via login, authenticated to impersonating and back, and
// the permission sync that follows both.
package authn

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"nusalink.id/internal/audit"
	"nusalink.id/internal/backend"
	"nusalink.id/internal/obs"
	"nusalink.id/internal/rbac"
	"nusalink.id/internal/session"
)

const defaultLogoutTimeout = 3 * time.Second

// Backend is the slice of the backend API the manager depends on.
type Backend interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	Impersonate(ctx context.Context, accessToken, targetUserID string) (*backend.LoginResult, error)
	Permissions(ctx context.Context, accessToken string) ([]rbac.Record, error)
	Logout(ctx context.Context, accessToken string) error
}

// Manager is the only writer of session state. It operates on the
// per-request session store handed to each call.
type Manager struct {
	backend       Backend
	now           func() time.Time
	logoutTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithLogoutTimeout bounds the best-effort backend logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}

// NewManager constructs a Manager over the backend client.
func NewManager(b Backend, opts ...Option) (*Manager, error) {
	if b == nil {
		return nil, errors.New("authn: backend is required")
	}
	m := &Manager{
		backend:       b,
		now:           time.Now,
		logoutTimeout: defaultLogoutTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Login authenticates against the backend and, on success, writes tokens
// and the normalized profile into the store and syncs permissions. A
// backend rejection surfaces as *AuthError with the backend message; no
// session fields are written on any failure path.
func (m *Manager) Login(ctx context.Context, store *session.Store, email, password string) (*session.Profile, error) {
	result, err := m.backend.Login(ctx, email, password)
	if err != nil {
		obs.ObserveLogin("failure")
		var apiErr *backend.Error
		if errors.As(err, &apiErr) {
			return nil, &AuthError{Message: apiErr.Message, StatusCode: apiErr.StatusCode}
		}
		return nil, err
	}

	if err := store.SetSession(ctx, m.tokensFor(result), result.User); err != nil {
		obs.ObserveLogin("failure")
		return nil, err
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(ctx, "session.login", map[string]any{
		"user_id": result.User.ID,
		"role":    string(result.User.Role),
	})

	// Non-fatal: a failed sync degrades to the cached or default matrix.
	m.SyncPermissions(ctx, store)

	profile := result.User
	return &profile, nil
}

// SyncPermissions fetches the flat permission listing, folds it into a
// matrix and persists it. On any failure it logs, leaves the previously
// cached matrix untouched and returns nil: stale-but-available beats
// unavailable.
func (m *Manager) SyncPermissions(ctx context.Context, store *session.Store) rbac.Matrix {
	access, ok := store.AccessToken()
	if !ok {
		obs.ObservePermissionSync("failure")
		obs.Logger().Warn("permission sync skipped: no access token")
		return nil
	}
	records, err := m.backend.Permissions(ctx, access)
	if err != nil {
		obs.ObservePermissionSync("failure")
		obs.Logger().Warn("permission sync failed", zap.Error(err))
		return nil
	}
	matrix := rbac.FromRecords(records)
	if err := store.SetMatrix(ctx, matrix); err != nil {
		obs.ObservePermissionSync("failure")
		obs.Logger().Warn("permission matrix persist failed", zap.Error(err))
		return nil
	}
	obs.ObservePermissionSync("success")
	_ = audit.LogEvent(ctx, "permissions.sync", map[string]any{
		"roles": len(matrix),
	})
	return matrix
}

// Impersonate swaps the live session for the target user's. The original
// session is parked exactly once per chain: a second impersonate while
// already impersonating replaces only the live session and leaves the
// parked original untouched. Backend failures propagate and leave the
// current session intact.
func (m *Manager) Impersonate(ctx context.Context, store *session.Store, targetUserID string) (*session.Profile, error) {
	access, ok := store.AccessToken()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	result, err := m.backend.Impersonate(ctx, access, targetUserID)
	if err != nil {
		var apiErr *backend.Error
		if errors.As(err, &apiErr) {
			return nil, &AuthError{Message: apiErr.Message, StatusCode: apiErr.StatusCode}
		}
		return nil, err
	}

	firstHop := !store.HasBackup(ctx)
	if err := store.BackupLive(ctx); err != nil {
		return nil, err
	}
	if err := store.Clear(ctx); err != nil {
		return nil, err
	}
	if err := store.SetSession(ctx, m.tokensFor(result), result.User); err != nil {
		return nil, err
	}

	if firstHop {
		obs.ImpersonationStarted()
	}
	_ = audit.LogEvent(ctx, "impersonation.start", map[string]any{
		"target_user_id": result.User.ID,
		"target_role":    string(result.User.Role),
	})

	m.SyncPermissions(ctx, store)

	profile := result.User
	return &profile, nil
}

// StopImpersonation restores the parked session. Returns false (not an
// error) when no backup exists; the caller decides the UX.
func (m *Manager) StopImpersonation(ctx context.Context, store *session.Store) (bool, error) {
	restored, err := store.RestoreBackup(ctx)
	if err != nil {
		return false, err
	}
	if !restored {
		return false, nil
	}
	obs.ImpersonationStopped()
	_ = audit.LogEvent(ctx, "impersonation.stop", nil)
	return true, nil
}

// Logout invalidates the backend session best-effort (bounded by the
// logout timeout, failures only logged) and then unconditionally clears
// the live session. The impersonation backup is deliberately left in
// place; see the design notes.
func (m *Manager) Logout(ctx context.Context, store *session.Store) error {
	if access, ok := store.AccessToken(); ok {
		callCtx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
		if err := m.backend.Logout(callCtx, access); err != nil {
			obs.Logger().Warn("backend logout failed", zap.Error(err))
		}
		cancel()
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "session.logout", nil)
	return nil
}

// tokensFor derives cookie lifetimes from the JWT exp claim when the
// backend tokens are JWTs; opaque tokens fall back to the store defaults.
func (m *Manager) tokensFor(result *backend.LoginResult) session.Tokens {
	now := m.now()
	return session.Tokens{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		AccessTTL:    tokenTTL(now, result.AccessToken),
		RefreshTTL:   tokenTTL(now, result.RefreshToken),
	}
}

func tokenTTL(now time.Time, token string) time.Duration {
	if token == "" {
		return 0
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	ttl := exp.Time.Sub(now)
	if ttl <= 0 {
		return 0
	}
	return ttl
}
