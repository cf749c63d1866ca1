package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nusalink.id/internal/rbac"
)

// Persisted key names. These are part of the contract with the dashboard
// frontend and the legacy client code; do not rename.
const (
	KeyAuthToken            = "auth_token"
	KeyRefreshToken         = "refresh_token"
	KeyOriginalAuthToken    = "original_auth_token"
	KeyOriginalRefreshToken = "original_refresh_token"

	KeyUserProfile         = "user_profile"
	KeyPermissions         = "app_permissions"
	KeyOriginalUserProfile = "original_user_profile"
	KeyOriginalPermissions = "original_app_permissions"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var errNilTier = errors.New("session: storage tier is nil")

// TokenTier is the expiring key-value tier. At the HTTP edge it is backed
// by browser cookies; tests use the in-memory implementation.
type TokenTier interface {
	Token(name string) (string, bool)
	SetToken(name, value string, ttl time.Duration)
	DeleteToken(name string)
}

// ValueTier is the durable key-value tier holding JSON-serialized profile
// and permission state. Absence is reported via the boolean, not an error.
type ValueTier interface {
	Value(ctx context.Context, key string) ([]byte, bool, error)
	SetValue(ctx context.Context, key string, value []byte) error
	DeleteValue(ctx context.Context, key string) error
}

// Tokens is the pair issued by the backend. Zero TTLs fall back to the
// store defaults.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// Store owns all persisted session fields across both tiers. The auth
// manager is the only writer; guards and handlers read.
type Store struct {
	tokens     TokenTier
	values     ValueTier
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithAccessTTL overrides the default access token lifetime.
func WithAccessTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the default refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// New constructs a Store over the two injected tiers.
func New(tokens TokenTier, values ValueTier, opts ...StoreOption) (*Store, error) {
	if tokens == nil || values == nil {
		return nil, errNilTier
	}
	s := &Store{
		tokens:     tokens,
		values:     values,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessToken returns the live access token if present.
func (s *Store) AccessToken() (string, bool) {
	return s.tokens.Token(KeyAuthToken)
}

// RefreshToken returns the live refresh token if present.
func (s *Store) RefreshToken() (string, bool) {
	return s.tokens.Token(KeyRefreshToken)
}

// CurrentUser deserializes the persisted profile. Absent or malformed
// state yields nil, never an error: consumers treat both as "not logged
// in".
func (s *Store) CurrentUser(ctx context.Context) *Profile {
	raw, ok, err := s.values.Value(ctx, KeyUserProfile)
	if err != nil || !ok || len(raw) == 0 {
		return nil
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil
	}
	return &profile
}

// SetSession writes a fresh session: tokens first, then profile. A crash
// between the two leaves token-without-profile, which CurrentUser already
// reports as "not logged in".
func (s *Store) SetSession(ctx context.Context, tok Tokens, profile Profile) error {
	accessTTL := tok.AccessTTL
	if accessTTL <= 0 {
		accessTTL = s.accessTTL
	}
	refreshTTL := tok.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = s.refreshTTL
	}
	s.tokens.SetToken(KeyAuthToken, tok.AccessToken, accessTTL)
	s.tokens.SetToken(KeyRefreshToken, tok.RefreshToken, refreshTTL)

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("session: encode profile: %w", err)
	}
	if err := s.values.SetValue(ctx, KeyUserProfile, raw); err != nil {
		return fmt.Errorf("session: persist profile: %w", err)
	}
	return nil
}

// SetMatrix persists the backend-synced permission matrix.
func (s *Store) SetMatrix(ctx context.Context, m rbac.Matrix) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("session: encode matrix: %w", err)
	}
	if err := s.values.SetValue(ctx, KeyPermissions, raw); err != nil {
		return fmt.Errorf("session: persist matrix: %w", err)
	}
	return nil
}

// CachedMatrix returns the persisted matrix. Storage failures and
// malformed JSON both report absence so the guard can fall back to the
// static defaults.
func (s *Store) CachedMatrix(ctx context.Context) (rbac.Matrix, bool) {
	raw, ok, err := s.values.Value(ctx, KeyPermissions)
	if err != nil || !ok {
		return nil, false
	}
	return rbac.ParseMatrix(raw)
}

// MatrixSource binds the store to a request context for use by the
// rbac.Authorizer, which is context-free by design.
func (s *Store) MatrixSource(ctx context.Context) rbac.MatrixSource {
	return rbac.MatrixSourceFunc(func() (rbac.Matrix, bool) {
		return s.CachedMatrix(ctx)
	})
}

// Clear removes the live session from both tiers. It is idempotent and
// deliberately leaves the impersonation backup keys untouched.
func (s *Store) Clear(ctx context.Context) error {
	s.tokens.DeleteToken(KeyAuthToken)
	s.tokens.DeleteToken(KeyRefreshToken)
	if err := s.values.DeleteValue(ctx, KeyUserProfile); err != nil {
		return fmt.Errorf("session: clear profile: %w", err)
	}
	if err := s.values.DeleteValue(ctx, KeyPermissions); err != nil {
		return fmt.Errorf("session: clear matrix: %w", err)
	}
	return nil
}

// HasBackup reports whether an impersonation backup is parked.
func (s *Store) HasBackup(ctx context.Context) bool {
	if _, ok := s.tokens.Token(KeyOriginalAuthToken); ok {
		return true
	}
	_, ok, err := s.values.Value(ctx, KeyOriginalUserProfile)
	return err == nil && ok
}

// BackupLive parks the current tokens, profile and matrix in the backup
// slot. The backup is created exactly once per impersonation chain: when
// one already exists this is a no-op, so a nested impersonate never
// overwrites the original session.
func (s *Store) BackupLive(ctx context.Context) error {
	if s.HasBackup(ctx) {
		return nil
	}
	if access, ok := s.tokens.Token(KeyAuthToken); ok {
		s.tokens.SetToken(KeyOriginalAuthToken, access, s.accessTTL)
	}
	if refresh, ok := s.tokens.Token(KeyRefreshToken); ok {
		s.tokens.SetToken(KeyOriginalRefreshToken, refresh, s.refreshTTL)
	}
	if err := s.copyValue(ctx, KeyUserProfile, KeyOriginalUserProfile); err != nil {
		return err
	}
	return s.copyValue(ctx, KeyPermissions, KeyOriginalPermissions)
}

// RestoreBackup swaps the parked session back in: clears the live
// session, promotes the backup and deletes the backup slot. Returns false
// without touching anything when no backup exists.
func (s *Store) RestoreBackup(ctx context.Context) (bool, error) {
	if !s.HasBackup(ctx) {
		return false, nil
	}
	if err := s.Clear(ctx); err != nil {
		return false, err
	}
	if access, ok := s.tokens.Token(KeyOriginalAuthToken); ok {
		s.tokens.SetToken(KeyAuthToken, access, s.accessTTL)
	}
	if refresh, ok := s.tokens.Token(KeyOriginalRefreshToken); ok {
		s.tokens.SetToken(KeyRefreshToken, refresh, s.refreshTTL)
	}
	if err := s.copyValue(ctx, KeyOriginalUserProfile, KeyUserProfile); err != nil {
		return false, err
	}
	if err := s.copyValue(ctx, KeyOriginalPermissions, KeyPermissions); err != nil {
		return false, err
	}
	s.tokens.DeleteToken(KeyOriginalAuthToken)
	s.tokens.DeleteToken(KeyOriginalRefreshToken)
	if err := s.values.DeleteValue(ctx, KeyOriginalUserProfile); err != nil {
		return false, fmt.Errorf("session: drop backup profile: %w", err)
	}
	if err := s.values.DeleteValue(ctx, KeyOriginalPermissions); err != nil {
		return false, fmt.Errorf("session: drop backup matrix: %w", err)
	}
	return true, nil
}

func (s *Store) copyValue(ctx context.Context, from, to string) error {
	raw, ok, err := s.values.Value(ctx, from)
	if err != nil {
		return fmt.Errorf("session: read %s: %w", from, err)
	}
	if !ok {
		return nil
	}
	if err := s.values.SetValue(ctx, to, raw); err != nil {
		return fmt.Errorf("session: write %s: %w", to, err)
	}
	return nil
}
