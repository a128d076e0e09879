package session_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/go-session-client/session"
	"github.com/adminkit/go-session-client/session/backendfake"
	"github.com/adminkit/go-session-client/tokenstore"
)

func TestScheduler_IdempotentScheduling(t *testing.T) {
	fake := backendfake.New()
	fake.RefreshStub = func(string) (*tokenstore.TokenSet, error) {
		// The new expiry is far out so the re-armed timer stays quiet.
		return &tokenstore.TokenSet{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
	}

	c, store := newCoordinator(t, fake, session.WithSafetyMargin(0))
	store.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 1})

	// Re-arming on every mount must cancel the previous timer, leaving one.
	for i := 0; i < 5; i++ {
		c.ScheduleRefresh()
	}

	require.Eventually(t, func() bool {
		return fake.RefreshCalls() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, fake.RefreshCalls(), "five schedule calls must not produce five refreshes")
	require.Equal(t, "a2", store.AccessToken())
}

func TestScheduler_FiresImmediatelyWhenExpiryPassed(t *testing.T) {
	fake := backendfake.New()
	fake.RefreshStub = func(string) (*tokenstore.TokenSet, error) {
		return &tokenstore.TokenSet{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
	}

	// A JWT whose exp claim already passed stands in for a token that
	// expired while the process was suspended.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	c, store := newCoordinator(t, fake)
	store.StoreTokenSet(tokenstore.TokenSet{AccessToken: signed, RefreshToken: "r1"})

	c.ScheduleRefresh()

	require.Eventually(t, func() bool {
		return fake.RefreshCalls() == 1
	}, time.Second, 10*time.Millisecond, "a token that expired while suspended refreshes immediately")
}

func TestScheduler_FiresAtExpiryMinusMargin(t *testing.T) {
	fake := backendfake.New()
	fake.RefreshStub = func(string) (*tokenstore.TokenSet, error) {
		return &tokenstore.TokenSet{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
	}

	c, store := newCoordinator(t, fake, session.WithSafetyMargin(600*time.Millisecond))
	store.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 1})
	c.ScheduleRefresh()

	// Well inside the margin window nothing has fired yet.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, fake.RefreshCalls(), "refresh must not fire before expiry minus margin")

	require.Eventually(t, func() bool {
		return fake.RefreshCalls() == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_NothingToSchedule(t *testing.T) {
	fake := backendfake.New()
	c, _ := newCoordinator(t, fake)

	c.ScheduleRefresh()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, fake.RefreshCalls(), "no stored tokens means no timer")
}

func TestScheduler_SupersededTokenSetCancelsTimer(t *testing.T) {
	fake := backendfake.New()
	fake.RefreshStub = func(string) (*tokenstore.TokenSet, error) {
		return &tokenstore.TokenSet{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
	}

	c, store := newCoordinator(t, fake, session.WithSafetyMargin(0))
	store.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 1})
	c.ScheduleRefresh()

	// A superseding TokenSet (manual login/refresh success) re-arms the
	// timer for the new expiry before the old one fires.
	store.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a9", RefreshToken: "r9", ExpiresIn: 3600})
	c.ScheduleRefresh()

	time.Sleep(1500 * time.Millisecond)
	require.Equal(t, 0, fake.RefreshCalls(), "the superseded timer must not fire")
	require.Equal(t, "a9", store.AccessToken())
}

func TestScheduler_LogoutCancelsTimer(t *testing.T) {
	fake := backendfake.New()

	c, store := newCoordinator(t, fake, session.WithSafetyMargin(0))
	store.StoreTokenSet(tokenstore.TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 1})
	c.ScheduleRefresh()

	c.Logout()

	time.Sleep(1500 * time.Millisecond)
	require.Equal(t, 0, fake.RefreshCalls(), "logout cancels the pending refresh")
	require.False(t, store.IsLoggedIn())
}
