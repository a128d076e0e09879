package tokenstore_test

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/go-session-client/tokenstore"
)

func TestStore_TokenPairAtomicity(t *testing.T) {
	s := tokenstore.New(tokenstore.NewMemoryBackend())

	t.Run("pair always from the same call", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s.StoreTokenSet(tokenstore.TokenSet{
					AccessToken:  fmt.Sprintf("a%d", i),
					RefreshToken: fmt.Sprintf("r%d", i),
					ExpiresIn:    60,
				})
			}(i)
		}
		wg.Wait()

		access := s.AccessToken()
		refresh := s.RefreshToken()
		require.Equal(t, access[1:], refresh[1:], "access %q and refresh %q must come from the same StoreTokenSet call", access, refresh)
	})

	t.Run("overwrite replaces both tokens", func(t *testing.T) {
		s.StoreTokenSet(tokenstore.TokenSet{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 60})
		require.Equal(t, "new-access", s.AccessToken())
		require.Equal(t, "new-refresh", s.RefreshToken())
	})
}

func TestStore_IsLoggedIn(t *testing.T) {
	now := time.Now()
	nowFunc := func() time.Time { return now }
	s := tokenstore.New(tokenstore.NewMemoryBackend(), tokenstore.WithNowFunc(nowFunc))

	require.False(t, s.IsLoggedIn(), "empty store must not report logged in")

	s.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 60})
	require.True(t, s.IsLoggedIn())
	require.Equal(t, now.Add(time.Minute), s.ExpiresAt())

	t.Run("flag overridden once the token expired", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		require.False(t, s.IsLoggedIn())
	})

	t.Run("cleared while a refresh is attempted", func(t *testing.T) {
		now = now.Add(-2 * time.Minute)
		require.True(t, s.IsLoggedIn())
		s.ClearLoggedIn()
		require.False(t, s.IsLoggedIn())
		require.Equal(t, "a1", s.AccessToken(), "tokens survive ClearLoggedIn")
		require.Equal(t, "r1", s.RefreshToken())
	})
}

func TestStore_ClearAll(t *testing.T) {
	s := tokenstore.New(tokenstore.NewMemoryBackend())

	// Clearing an empty store is a no-op, not an error.
	s.ClearAll()

	s.SetTenantID("tenant-7")
	deviceID := s.DeviceID()
	require.NotEmpty(t, deviceID)

	s.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 60})
	s.ClearAll()

	require.Empty(t, s.AccessToken())
	require.Empty(t, s.RefreshToken())
	require.True(t, s.ExpiresAt().IsZero())
	require.False(t, s.IsLoggedIn())
	require.Equal(t, "tenant-7", s.TenantID(), "cached tenant survives logout")
	require.Equal(t, deviceID, s.DeviceID(), "device identity survives logout")
}

func TestStore_ExpiryFromJWT(t *testing.T) {
	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	s := tokenstore.New(tokenstore.NewMemoryBackend())
	s.StoreTokenSet(tokenstore.TokenSet{AccessToken: signed, RefreshToken: "r1"})
	require.Equal(t, exp.Unix(), s.ExpiresAt().Unix(), "expiry recovered from the exp claim when expires_in is absent")
}

type failingBackend struct{}

func (failingBackend) Load() (*tokenstore.Snapshot, error) { return nil, errors.New("disk gone") }
func (failingBackend) Save(*tokenstore.Snapshot) error     { return errors.New("disk gone") }
func (failingBackend) Clear() error                        { return errors.New("disk gone") }

func TestStore_DegradedMode(t *testing.T) {
	// A broken backend must not break the store for the current process.
	s := tokenstore.New(failingBackend{})

	s.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 60})
	require.Equal(t, "a1", s.AccessToken())
	require.True(t, s.IsLoggedIn())
	s.ClearAll()
	require.False(t, s.IsLoggedIn())
}

func TestFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	fb, err := tokenstore.NewFileBackend(path)
	require.NoError(t, err)

	t.Run("missing file loads empty", func(t *testing.T) {
		snap, err := fb.Load()
		require.NoError(t, err)
		require.Nil(t, snap)
	})

	t.Run("round trip", func(t *testing.T) {
		s := tokenstore.New(fb)
		s.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 60})
		deviceID := s.DeviceID()

		reloaded := tokenstore.New(fb)
		require.Equal(t, "a1", reloaded.AccessToken())
		require.Equal(t, "r1", reloaded.RefreshToken())
		require.True(t, reloaded.IsLoggedIn())
		require.Equal(t, deviceID, reloaded.DeviceID(), "device identity is stable across restarts")
	})

	t.Run("clear removes the file, twice is fine", func(t *testing.T) {
		require.NoError(t, fb.Clear())
		require.NoError(t, fb.Clear())
		snap, err := fb.Load()
		require.NoError(t, err)
		require.Nil(t, snap)
	})
}

func TestFileBackend_Encrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")

	fb, err := tokenstore.NewFileBackend(path, tokenstore.WithEncryptionKey(key))
	require.NoError(t, err)

	require.NoError(t, fb.Save(&tokenstore.Snapshot{AccessToken: "a1", RefreshToken: "r1", LoggedIn: true}))

	snap, err := fb.Load()
	require.NoError(t, err)
	require.Equal(t, "a1", snap.AccessToken)
	require.True(t, snap.LoggedIn)

	t.Run("wrong key cannot read the file", func(t *testing.T) {
		otherKey := make([]byte, 32)
		copy(otherKey, "ffffffffffffffffffffffffffffffff")
		other, err := tokenstore.NewFileBackend(path, tokenstore.WithEncryptionKey(otherKey))
		require.NoError(t, err)
		_, err = other.Load()
		require.Error(t, err)
	})

	t.Run("short key rejected", func(t *testing.T) {
		_, err := tokenstore.NewFileBackend(path, tokenstore.WithEncryptionKey([]byte("short")))
		require.Error(t, err)
	})
}
