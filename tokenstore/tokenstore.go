// Package tokenstore persists the current token pair and session flags on the
// client side. All reads and writes go through a single Store so that the
// access and refresh tokens are always replaced as a unit.
package tokenstore

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenSet is the paired credential material returned by the backend's login
// and refresh endpoints.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // Access token lifetime in seconds
}

// Snapshot is the full persisted session record. Backends load and save it
// wholesale; there are no partial field updates.
type Snapshot struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	LoggedIn     bool      `json:"logged_in,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"` // Cached tenant used to pre-seed config resolution
}

// Backend is the durable storage behind a Store.
type Backend interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
	Clear() error
}

// Store holds the in-memory authoritative copy of the session snapshot and
// mirrors every change to its backend. If the backend fails the Store keeps
// working for the lifetime of the process (degraded, non-persistent mode);
// storage failures never surface to callers.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	snap     Snapshot
	degraded bool
	nowFunc  func() time.Time
	log      zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// New creates a Store backed by backend. A nil backend yields a purely
// in-memory store. Load failures are logged and tolerated: the Store starts
// empty and stops mirroring to the backend.
func New(backend Backend, options ...Option) *Store {
	s := &Store{
		backend: backend,
		nowFunc: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.backend == nil {
		s.backend = NewMemoryBackend()
	}

	if snap, err := s.backend.Load(); err != nil {
		s.degraded = true
		s.log.Warn().Err(err).Msg("token storage unavailable, running non-persistent")
	} else if snap != nil {
		s.snap = *snap
	}

	if s.snap.DeviceID == "" {
		s.snap.DeviceID = uuid.New().String()
		s.persist()
	}
	return s
}

// StoreTokenSet replaces the persisted token pair with ts, computes the
// absolute expiry from ts.ExpiresIn and marks the session as logged in.
// When the backend reports no lifetime, the expiry is recovered from the
// access token's exp claim if it is a JWT.
func (s *Store) StoreTokenSet(ts TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt time.Time
	if ts.ExpiresIn > 0 {
		expiresAt = s.nowFunc().Add(time.Duration(ts.ExpiresIn) * time.Second)
	} else if exp, ok := expiryFromToken(ts.AccessToken); ok {
		expiresAt = exp
	}

	s.snap.AccessToken = ts.AccessToken
	s.snap.RefreshToken = ts.RefreshToken
	s.snap.ExpiresAt = expiresAt
	s.snap.LoggedIn = true
	s.persist()
}

// AccessToken returns the stored access token, or "" if absent.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.AccessToken
}

// RefreshToken returns the stored refresh token, or "" if absent.
func (s *Store) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.RefreshToken
}

// ExpiresAt returns the absolute expiry of the stored access token, or the
// zero time when no expiry is recorded.
func (s *Store) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ExpiresAt
}

// IsLoggedIn reports whether the session was marked logged in. A recorded
// expiry in the past overrides the flag, so a token that silently expired
// while the refresh timer was suspended is not reported as live.
func (s *Store) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.LoggedIn {
		return false
	}
	if !s.snap.ExpiresAt.IsZero() && !s.nowFunc().Before(s.snap.ExpiresAt) {
		return false
	}
	return true
}

// ClearAll removes the token pair, expiry and logged-in flag. The cached
// device and tenant identifiers survive so the next login reuses them.
// Calling ClearAll on an empty store is a no-op.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.AccessToken = ""
	s.snap.RefreshToken = ""
	s.snap.ExpiresAt = time.Time{}
	s.snap.LoggedIn = false
	s.persist()
}

// ClearLoggedIn drops only the logged-in flag. Used while a refresh is in
// flight so a half-refreshed session is not reported as fully logged in.
func (s *Store) ClearLoggedIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LoggedIn = false
	s.persist()
}

// DeviceID returns the stable per-install identifier, minted on first use.
func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.DeviceID
}

// TenantID returns the cached tenant identifier, or "" when none was cached.
func (s *Store) TenantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.TenantID
}

// SetTenantID caches the resolved tenant identifier so the next start can
// pre-seed configuration resolution before the first network round trip.
func (s *Store) SetTenantID(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.TenantID = tenantID
	s.persist()
}

// persist mirrors the snapshot to the backend. Callers hold s.mu.
func (s *Store) persist() {
	if s.degraded {
		return
	}
	snap := s.snap
	if err := s.backend.Save(&snap); err != nil {
		s.degraded = true
		s.log.Warn().Err(err).Msg("token storage write failed, running non-persistent")
	}
}

// expiryFromToken recovers the expiry from a JWT access token's exp claim
// without verifying the signature. Verification is the backend's job; the
// client only needs the timestamp for scheduling.
func expiryFromToken(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
