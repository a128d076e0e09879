package session

import "errors"

var (
	ErrNotLoggedIn       = errors.New("no session tokens stored")
	ErrNotResolved       = errors.New("identity not resolved")
	ErrSessionSuperseded = errors.New("session superseded before response arrived")
	ErrRefreshFailed     = errors.New("token refresh failed")
)
