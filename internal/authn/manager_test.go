package authn

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nusalink.id/internal/backend"
	"nusalink.id/internal/rbac"
	"nusalink.id/internal/session"
)

type stubBackend struct {
	loginFn       func(ctx context.Context, email, password string) (*backend.LoginResult, error)
	impersonateFn func(ctx context.Context, accessToken, targetUserID string) (*backend.LoginResult, error)
	permissionsFn func(ctx context.Context, accessToken string) ([]rbac.Record, error)
	logoutFn      func(ctx context.Context, accessToken string) error
}

func (s *stubBackend) Login(ctx context.Context, email, password string) (*backend.LoginResult, error) {
	if s.loginFn != nil {
		return s.loginFn(ctx, email, password)
	}
	return nil, errors.New("login not stubbed")
}

func (s *stubBackend) Impersonate(ctx context.Context, accessToken, targetUserID string) (*backend.LoginResult, error) {
	if s.impersonateFn != nil {
		return s.impersonateFn(ctx, accessToken, targetUserID)
	}
	return nil, errors.New("impersonate not stubbed")
}

func (s *stubBackend) Permissions(ctx context.Context, accessToken string) ([]rbac.Record, error) {
	if s.permissionsFn != nil {
		return s.permissionsFn(ctx, accessToken)
	}
	return nil, nil
}

func (s *stubBackend) Logout(ctx context.Context, accessToken string) error {
	if s.logoutFn != nil {
		return s.logoutFn(ctx, accessToken)
	}
	return nil
}

func newTestManager(t *testing.T, b Backend) (*Manager, *session.Store) {
	t.Helper()
	mgr, err := NewManager(b)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	store, err := session.New(session.NewMemoryTokens(), session.NewMemoryValues())
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return mgr, store
}

func salesResult(id string) *backend.LoginResult {
	return &backend.LoginResult{
		User:         session.Profile{ID: id, Name: "Dewi", Role: rbac.RoleSales},
		AccessToken:  "acc-" + id,
		RefreshToken: "ref-" + id,
	}
}

func TestLoginSuccessWritesSessionAndSyncsMatrix(t *testing.T) {
	b := &stubBackend{
		loginFn: func(_ context.Context, email, _ string) (*backend.LoginResult, error) {
			if email != "dewi@nusalink.id" {
				t.Fatalf("unexpected email: %q", email)
			}
			return salesResult("u1"), nil
		},
		permissionsFn: func(_ context.Context, accessToken string) ([]rbac.Record, error) {
			if accessToken != "acc-u1" {
				t.Fatalf("sync must use the fresh access token, got %q", accessToken)
			}
			return []rbac.Record{
				{Role: rbac.RoleSales, Resource: rbac.ResourceProspek, Action: rbac.ActionView},
			}, nil
		},
	}
	mgr, store := newTestManager(t, b)
	ctx := context.Background()

	profile, err := mgr.Login(ctx, store, "dewi@nusalink.id", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if profile.Role != rbac.RoleSales {
		t.Fatalf("unexpected role: %q", profile.Role)
	}

	stored := store.CurrentUser(ctx)
	if stored == nil || stored.Name != "Dewi" || stored.Role != rbac.RoleSales {
		t.Fatalf("unexpected stored profile: %+v", stored)
	}
	if access, _ := store.AccessToken(); access != "acc-u1" {
		t.Fatalf("access token not written: %q", access)
	}
	matrix, ok := store.CachedMatrix(ctx)
	if !ok || !matrix.Allows(rbac.RoleSales, rbac.ResourceProspek, rbac.ActionView) {
		t.Fatalf("matrix not synced: ok=%v", ok)
	}
}

func TestLoginRejectionWritesNothing(t *testing.T) {
	b := &stubBackend{
		loginFn: func(context.Context, string, string) (*backend.LoginResult, error) {
			return nil, &backend.Error{StatusCode: http.StatusUnauthorized, Message: "email atau password salah"}
		},
	}
	mgr, store := newTestManager(t, b)
	ctx := context.Background()

	_, err := mgr.Login(ctx, store, "dewi@nusalink.id", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if authErr.Message != "email atau password salah" {
		t.Fatalf("backend message lost: %q", authErr.Message)
	}
	if store.CurrentUser(ctx) != nil {
		t.Fatal("failed login must not write a profile")
	}
	if _, ok := store.AccessToken(); ok {
		t.Fatal("failed login must not write tokens")
	}
}

func TestLoginTransportErrorPropagates(t *testing.T) {
	transportErr := errors.New("dial tcp: connection refused")
	b := &stubBackend{
		loginFn: func(context.Context, string, string) (*backend.LoginResult, error) {
			return nil, transportErr
		},
	}
	mgr, store := newTestManager(t, b)

	_, err := mgr.Login(context.Background(), store, "a@b.c", "pw")
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected transport error to propagate, got %v", err)
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		t.Fatal("transport failure must not masquerade as a credential rejection")
	}
}

func TestSyncFailureKeepsStaleMatrix(t *testing.T) {
	failing := errors.New("backend unavailable")
	b := &stubBackend{
		permissionsFn: func(context.Context, string) ([]rbac.Record, error) {
			return nil, failing
		},
	}
	mgr, store := newTestManager(t, b)
	ctx := context.Background()

	stale := rbac.Matrix{rbac.RoleSales: {rbac.ResourceProspek: {rbac.ActionView}}}
	if err := store.SetMatrix(ctx, stale); err != nil {
		t.Fatalf("SetMatrix: %v", err)
	}
	if err := store.SetSession(ctx, session.Tokens{AccessToken: "acc", RefreshToken: "ref"}, session.Profile{ID: "u1"}); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	if got := mgr.SyncPermissions(ctx, store); got != nil {
		t.Fatalf("failed sync must return nil, got %v", got)
	}
	cached, ok := store.CachedMatrix(ctx)
	if !ok || !cached.Allows(rbac.RoleSales, rbac.ResourceProspek, rbac.ActionView) {
		t.Fatal("stale matrix must survive a failed sync")
	}
}

func TestImpersonationChainKeepsOriginalBackup(t *testing.T) {
	b := &stubBackend{
		impersonateFn: func(_ context.Context, _, targetUserID string) (*backend.LoginResult, error) {
			return &backend.LoginResult{
				User:         session.Profile{ID: targetUserID, Role: rbac.RoleTechnician},
				AccessToken:  "acc-" + targetUserID,
				RefreshToken: "ref-" + targetUserID,
			}, nil
		},
	}
	mgr, store := newTestManager(t, b)
	ctx := context.Background()

	admin := session.Profile{ID: "admin-a", Role: rbac.RoleAdminPusat}
	if err := store.SetSession(ctx, session.Tokens{AccessToken: "acc-admin", RefreshToken: "ref-admin"}, admin); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	if _, err := mgr.Impersonate(ctx, store, "user-b"); err != nil {
		t.Fatalf("Impersonate B: %v", err)
	}
	if _, err := mgr.Impersonate(ctx, store, "user-c"); err != nil {
		t.Fatalf("Impersonate C: %v", err)
	}

	if got := store.CurrentUser(ctx); got == nil || got.ID != "user-c" {
		t.Fatalf("expected live session for user-c, got %+v", got)
	}

	restored, err := mgr.StopImpersonation(ctx, store)
	if err != nil || !restored {
		t.Fatalf("StopImpersonation: restored=%v err=%v", restored, err)
	}
	if got := store.CurrentUser(ctx); got == nil || got.ID != "admin-a" {
		t.Fatalf("expected original admin back, got %+v", got)
	}
	if access, _ := store.AccessToken(); access != "acc-admin" {
		t.Fatalf("expected original token back, got %q", access)
	}
}

func TestImpersonateWithoutSession(t *testing.T) {
	mgr, store := newTestManager(t, &stubBackend{})
	_, err := mgr.Impersonate(context.Background(), store, "user-b")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestImpersonateBackendFailureLeavesSessionIntact(t *testing.T) {
	b := &stubBackend{
		impersonateFn: func(context.Context, string, string) (*backend.LoginResult, error) {
			return nil, &backend.Error{StatusCode: http.StatusForbidden, Message: "impersonation denied"}
		},
	}
	mgr, store := newTestManager(t, b)
	ctx := context.Background()

	admin := session.Profile{ID: "admin-a", Role: rbac.RoleAdminPusat}
	if err := store.SetSession(ctx, session.Tokens{AccessToken: "acc-admin", RefreshToken: "ref-admin"}, admin); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	_, err := mgr.Impersonate(ctx, store, "user-b")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if got := store.CurrentUser(ctx); got == nil || got.ID != "admin-a" {
		t.Fatalf("live session must be untouched, got %+v", got)
	}
	if store.HasBackup(ctx) {
		t.Fatal("failed impersonation must not create a backup")
	}
}

func TestStopImpersonationWithoutBackup(t *testing.T) {
	mgr, store := newTestManager(t, &stubBackend{})
	restored, err := mgr.StopImpersonation(context.Background(), store)
	if err != nil {
		t.Fatalf("StopImpersonation: %v", err)
	}
	if restored {
		t.Fatal("expected false when no backup exists")
	}
}

func TestLogoutClearsLiveSessionOnly(t *testing.T) {
	backendCalled := false
	b := &stubBackend{
		impersonateFn: func(_ context.Context, _, targetUserID string) (*backend.LoginResult, error) {
			return &backend.LoginResult{
				User:        session.Profile{ID: targetUserID, Role: rbac.RoleUser},
				AccessToken: "acc-" + targetUserID,
			}, nil
		},
		logoutFn: func(context.Context, string) error {
			backendCalled = true
			return errors.New("backend logout unavailable")
		},
	}
	mgr, store := newTestManager(t, b)
	ctx := context.Background()

	admin := session.Profile{ID: "admin-a", Role: rbac.RoleAdminPusat}
	if err := store.SetSession(ctx, session.Tokens{AccessToken: "acc-admin", RefreshToken: "ref-admin"}, admin); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if _, err := mgr.Impersonate(ctx, store, "user-b"); err != nil {
		t.Fatalf("Impersonate: %v", err)
	}

	if err := mgr.Logout(ctx, store); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !backendCalled {
		t.Fatal("expected best-effort backend logout call")
	}
	if store.CurrentUser(ctx) != nil {
		t.Fatal("live session must be cleared")
	}
	// Logout intentionally leaves the impersonation backup in place.
	if !store.HasBackup(ctx) {
		t.Fatal("impersonation backup must survive logout")
	}
}

func TestTokenTTLFromJWT(t *testing.T) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "u1",
		"exp": now.Add(90 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	ttl := tokenTTL(now, token)
	if ttl < 89*time.Minute || ttl > 91*time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	if got := tokenTTL(now, "opaque-token"); got != 0 {
		t.Fatalf("opaque token must fall back to defaults, got %v", got)
	}
	if got := tokenTTL(now, ""); got != 0 {
		t.Fatalf("empty token must fall back, got %v", got)
	}
}
