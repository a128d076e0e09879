// Package backendfake is a hand-written Backend fake for coordinator tests.
package backendfake

import (
	"context"
	"sync"

	"github.com/adminkit/go-session-client/identity"
	"github.com/adminkit/go-session-client/session"
	"github.com/adminkit/go-session-client/tenants"
	"github.com/adminkit/go-session-client/tokenstore"
)

var _ session.Backend = (*FakeBackend)(nil)

// FakeBackend implements session.Backend with injectable stubs and call
// counters. Unstubbed methods return zero values.
type FakeBackend struct {
	lock sync.Mutex

	LoginStub      func(username, password string) (*tokenstore.TokenSet, error)
	RefreshStub    func(refreshToken string) (*tokenstore.TokenSet, error)
	WhoAmIStub     func(accessToken string) (*identity.Identity, error)
	UpdateUserStub func(accessToken, userID string, update identity.ProfileUpdate) (*identity.Identity, error)
	AppConfigStub  func(accessToken string) (*tenants.AppConfig, error)

	loginCalls      int
	refreshCalls    int
	whoAmICalls     int
	updateUserCalls int
	appConfigCalls  int
}

func New() *FakeBackend {
	return &FakeBackend{}
}

func (fb *FakeBackend) Login(_ context.Context, username, password string) (*tokenstore.TokenSet, error) {
	fb.lock.Lock()
	fb.loginCalls++
	stub := fb.LoginStub
	fb.lock.Unlock()
	if stub == nil {
		return &tokenstore.TokenSet{}, nil
	}
	return stub(username, password)
}

func (fb *FakeBackend) Refresh(_ context.Context, refreshToken string) (*tokenstore.TokenSet, error) {
	fb.lock.Lock()
	fb.refreshCalls++
	stub := fb.RefreshStub
	fb.lock.Unlock()
	if stub == nil {
		return &tokenstore.TokenSet{}, nil
	}
	return stub(refreshToken)
}

func (fb *FakeBackend) WhoAmI(_ context.Context, accessToken string) (*identity.Identity, error) {
	fb.lock.Lock()
	fb.whoAmICalls++
	stub := fb.WhoAmIStub
	fb.lock.Unlock()
	if stub == nil {
		return &identity.Identity{}, nil
	}
	return stub(accessToken)
}

func (fb *FakeBackend) UpdateUser(_ context.Context, accessToken, userID string, update identity.ProfileUpdate) (*identity.Identity, error) {
	fb.lock.Lock()
	fb.updateUserCalls++
	stub := fb.UpdateUserStub
	fb.lock.Unlock()
	if stub == nil {
		return &identity.Identity{ID: userID}, nil
	}
	return stub(accessToken, userID, update)
}

func (fb *FakeBackend) AppConfig(_ context.Context, accessToken string) (*tenants.AppConfig, error) {
	fb.lock.Lock()
	fb.appConfigCalls++
	stub := fb.AppConfigStub
	fb.lock.Unlock()
	if stub == nil {
		return &tenants.AppConfig{}, nil
	}
	return stub(accessToken)
}

func (fb *FakeBackend) LoginCalls() int {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.loginCalls
}

func (fb *FakeBackend) RefreshCalls() int {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.refreshCalls
}

func (fb *FakeBackend) WhoAmICalls() int {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.whoAmICalls
}

func (fb *FakeBackend) UpdateUserCalls() int {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.updateUserCalls
}

func (fb *FakeBackend) AppConfigCalls() int {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.appConfigCalls
}
