// Package session owns the client-side session lifecycle: token persistence,
// proactive refresh scheduling, identity and permission resolution, and
// tenant-domain consistency. One Coordinator instance replaces the ambient
// session globals a UI shell would otherwise keep.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/adminkit/go-session-client/api"
	"github.com/adminkit/go-session-client/identity"
	"github.com/adminkit/go-session-client/tenants"
	"github.com/adminkit/go-session-client/tokenstore"
)

const (
	defaultSafetyMargin   = 30 * time.Second
	defaultRefreshTimeout = 15 * time.Second
)

// Backend is the remote contract the coordinator drives. Implementations
// signal authentication failures (401) with api.ErrUnauthorized; the
// coordinator converts those into the refresh-then-retry-once flow.
type Backend interface {
	Login(ctx context.Context, username, password string) (*tokenstore.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*tokenstore.TokenSet, error)
	WhoAmI(ctx context.Context, accessToken string) (*identity.Identity, error)
	UpdateUser(ctx context.Context, accessToken, userID string, update identity.ProfileUpdate) (*identity.Identity, error)
	AppConfig(ctx context.Context, accessToken string) (*tenants.AppConfig, error)
}

// Coordinator is the session state machine. All exported methods are safe for
// concurrent use; token refresh is serialized so concurrent callers share one
// in-flight exchange instead of racing the same refresh token.
type Coordinator struct {
	backend        Backend
	store          *tokenstore.Store
	nav            tenants.Navigator
	redirect       tenants.RedirectOptions
	margin         time.Duration
	refreshTimeout time.Duration
	nowFunc        func() time.Time
	log            zerolog.Logger

	refreshGroup singleflight.Group

	mu          sync.Mutex
	state       State
	ident       *identity.Identity
	appConfig   *tenants.AppConfig
	timer       *time.Timer
	generation  uint64
	subscribers map[int]func(State)
	nextSubID   int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the lifecycle logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowFunc = now
	}
}

// WithSafetyMargin sets how long before token expiry the scheduled refresh
// fires, covering network latency and clock skew.
func WithSafetyMargin(margin time.Duration) Option {
	return func(c *Coordinator) {
		c.margin = margin
	}
}

// WithNavigator sets the navigator used for cross-tenant redirects.
func WithNavigator(nav tenants.Navigator) Option {
	return func(c *Coordinator) {
		c.nav = nav
	}
}

// WithRedirectOptions sets the deployment conventions for tenant redirects.
func WithRedirectOptions(opts tenants.RedirectOptions) Option {
	return func(c *Coordinator) {
		c.redirect = opts
	}
}

// WithRefreshTimeout bounds the network exchange of a timer-driven refresh.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.refreshTimeout = timeout
	}
}

// New creates a Coordinator over backend and store.
func New(backend Backend, store *tokenstore.Store, options ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, errors.New("[session.New] backend is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] store is required")
	}

	c := &Coordinator{
		backend:        backend,
		store:          store,
		margin:         defaultSafetyMargin,
		refreshTimeout: defaultRefreshTimeout,
		nowFunc:        time.Now,
		log:            zerolog.Nop(),
		state:          StateAnonymous,
		subscribers:    make(map[int]func(State)),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// State returns the current session state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the last resolved identity, or nil.
func (c *Coordinator) Identity() *identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ident
}

// Can reports whether the resolved identity holds the permission. Unresolved
// sessions can do nothing.
func (c *Coordinator) Can(permission identity.Permission) bool {
	return c.Identity().Can(permission)
}

// Store exposes the token store for embedders that need direct reads.
func (c *Coordinator) Store() *tokenstore.Store {
	return c.store
}

// Subscribe registers fn to run on every state change and returns the
// cancel function that removes it.
func (c *Coordinator) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Login exchanges credentials for tokens, persists them, arms the refresh
// timer and resolves the identity and application configuration.
func (c *Coordinator) Login(ctx context.Context, username, password string) (*identity.Identity, error) {
	ts, err := c.backend.Login(ctx, username, password)
	if err != nil {
		return nil, errors.Wrap(err, "[Coordinator.Login]")
	}

	c.mu.Lock()
	c.generation++ // supersede any flows from a previous session
	c.mu.Unlock()

	c.store.StoreTokenSet(*ts)
	c.ScheduleRefresh()

	ident, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	// Tenant resolution may depend on the authenticated identity, so the
	// configuration is re-fetched after every token change. A failure here
	// is not fatal: the previous configuration stays in place.
	if _, err := c.ReloadAppConfig(ctx); err != nil {
		c.log.Warn().Err(err).Msg("app config reload after login failed")
	}
	return ident, nil
}

// Resolve fetches the canonical identity for the stored access token. On an
// authentication failure it attempts exactly one token refresh and one retry;
// a failed refresh tears the session down.
func (c *Coordinator) Resolve(ctx context.Context) (*identity.Identity, error) {
	gen := c.gen()

	if c.store.AccessToken() == "" && c.store.RefreshToken() == "" {
		c.setState(StateAnonymous)
		return nil, ErrNotLoggedIn
	}
	c.setState(StateResolving)

	ident, err := c.backend.WhoAmI(ctx, c.store.AccessToken())
	if err != nil {
		if !api.IsAuthError(err) {
			return nil, errors.Wrap(err, "[Coordinator.Resolve] identity fetch")
		}
		if _, rerr := c.refresh(ctx, gen); rerr != nil {
			return nil, errors.Wrap(rerr, "[Coordinator.Resolve]")
		}
		c.setState(StateResolving)
		ident, err = c.backend.WhoAmI(ctx, c.store.AccessToken())
		if err != nil {
			if api.IsAuthError(err) {
				// The freshly refreshed token was rejected too; nothing
				// left to retry with.
				c.teardown()
			}
			return nil, errors.Wrap(err, "[Coordinator.Resolve] identity fetch retry")
		}
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil, ErrSessionSuperseded
	}
	c.ident = ident
	c.mu.Unlock()

	c.setState(StateAuthenticated)
	return ident, nil
}

// Refresh forces a token refresh now, sharing any exchange already in flight.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx, c.gen())
	return err
}

// UpdateProfile mutates the resolved identity's profile fields and
// re-resolves so subsequent Can and display calls see fresh data. A failed
// update leaves the session intact.
func (c *Coordinator) UpdateProfile(ctx context.Context, update identity.ProfileUpdate) (*identity.Identity, error) {
	current := c.Identity()
	if current == nil {
		return nil, ErrNotResolved
	}
	if update.Empty() {
		return current, nil
	}

	if _, err := c.backend.UpdateUser(ctx, c.store.AccessToken(), current.ID, update); err != nil {
		return nil, errors.Wrap(err, "[Coordinator.UpdateProfile]")
	}
	return c.Resolve(ctx)
}

// ReloadAppConfig re-fetches the application configuration. On failure the
// previously resolved configuration remains readable, so a transient network
// blip does not eject the user from their tenant context.
func (c *Coordinator) ReloadAppConfig(ctx context.Context) (*tenants.AppConfig, error) {
	cfg, err := c.backend.AppConfig(ctx, c.store.AccessToken())
	if err != nil {
		return c.AppConfig(), errors.Wrap(err, "[Coordinator.ReloadAppConfig]")
	}

	c.mu.Lock()
	c.appConfig = cfg
	c.mu.Unlock()

	if cfg.CurrentTenant != nil {
		c.store.SetTenantID(cfg.CurrentTenant.ID)
	}
	return cfg, nil
}

// AppConfig returns the last successfully resolved configuration, or nil.
func (c *Coordinator) AppConfig() *tenants.AppConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appConfig
}

// ShouldShowTenantSelection reports whether the embedder must prompt for a
// tenant before rendering tenant-scoped content.
func (c *Coordinator) ShouldShowTenantSelection() bool {
	return c.AppConfig().ShouldShowTenantSelection()
}

// EnsureTenantDomain checks the resolved tenant's domain against currentHost
// and, when they differ, asks the navigator to perform a full navigation.
// It returns the target URL ("" when no navigation is needed).
func (c *Coordinator) EnsureTenantDomain(currentHost string) (string, error) {
	cfg := c.AppConfig()
	if cfg == nil || cfg.CurrentTenant == nil {
		return "", nil
	}

	opts := c.redirect
	if opts.MainDomain == "" {
		opts.MainDomain = cfg.HostMainDomain
	}
	target := tenants.RedirectTarget(cfg.CurrentTenant, currentHost, opts)
	if target == "" || c.nav == nil {
		return target, nil
	}
	if err := c.nav.Navigate(target); err != nil {
		return target, errors.Wrap(err, "[Coordinator.EnsureTenantDomain] navigate")
	}
	return target, nil
}

// Logout tears the session down: tokens cleared, timer cancelled, state
// LOGGED_OUT. In-flight responses from before the logout are discarded when
// they arrive.
func (c *Coordinator) Logout() {
	c.teardown()
}

// ScheduleRefresh (re)arms the proactive refresh timer for the stored expiry.
// It is idempotent: any previously pending timer is cancelled first, so
// repeated calls leave exactly one timer outstanding.
func (c *Coordinator) ScheduleRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleLocked()
}

// Close cancels the pending refresh timer. The session state is untouched.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// scheduleLocked arms the timer. Callers hold c.mu.
func (c *Coordinator) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	expiry := c.store.ExpiresAt()
	if c.store.RefreshToken() == "" || expiry.IsZero() {
		return
	}

	delay := expiry.Sub(c.nowFunc()) - c.margin
	if delay < 0 {
		delay = 0 // expiry already passed, refresh immediately
	}

	gen := c.generation
	c.timer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()
		if _, err := c.refresh(ctx, gen); err != nil && !errors.Is(err, ErrSessionSuperseded) {
			c.log.Warn().Err(err).Msg("scheduled token refresh failed")
		}
	})
	c.log.Debug().Dur("delay", delay).Msg("refresh scheduled")
}

// refresh exchanges the refresh token for a new TokenSet. Concurrent callers
// share a single in-flight exchange; refresh tokens rotate, so two parallel
// exchanges would invalidate each other. Any failure is terminal for the
// session. gen pins the session the caller observed: if it was superseded by
// a logout or new login, the result is discarded.
func (c *Coordinator) refresh(ctx context.Context, gen uint64) (*tokenstore.TokenSet, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		if c.gen() != gen {
			return nil, ErrSessionSuperseded
		}
		refreshToken := c.store.RefreshToken()
		if refreshToken == "" {
			c.teardown()
			return nil, ErrNotLoggedIn
		}

		prev := c.State()
		c.setState(StateRefreshing)
		// A half-refreshed session must not report as fully logged in.
		c.store.ClearLoggedIn()

		ts, err := c.backend.Refresh(ctx, refreshToken)
		if err != nil {
			c.log.Info().Err(err).Msg("refresh exchange failed, tearing session down")
			c.teardown()
			return nil, errors.Wrapf(ErrRefreshFailed, "%v", err)
		}
		if c.gen() != gen {
			return nil, ErrSessionSuperseded
		}

		c.store.StoreTokenSet(*ts)
		c.mu.Lock()
		c.scheduleLocked()
		c.mu.Unlock()
		if prev == StateAuthenticated {
			// Proactive refresh: the identity is still resolved.
			c.setState(StateAuthenticated)
		}
		return ts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tokenstore.TokenSet), nil
}

// teardown ends the session from any state: tokens gone, timer cancelled,
// flows from before the teardown superseded.
func (c *Coordinator) teardown() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	c.ident = nil
	changed := c.state != StateLoggedOut
	c.state = StateLoggedOut
	c.mu.Unlock()

	c.store.ClearAll()
	if changed {
		c.notify(StateLoggedOut)
	}
}

func (c *Coordinator) gen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Coordinator) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.notify(state)
}

func (c *Coordinator) notify(state State) {
	c.mu.Lock()
	fns := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}
