package session

// State is the session-level lifecycle state. Transitions:
//
//	ANONYMOUS -> RESOLVING -> AUTHENTICATED
//	RESOLVING/AUTHENTICATED -> REFRESHING (on auth failure)
//	REFRESHING -> RESOLVING (refresh succeeded, retry once)
//	any -> LOGGED_OUT (refresh failure or explicit logout)
type State string

const (
	StateAnonymous     State = "anonymous"
	StateResolving     State = "resolving"
	StateAuthenticated State = "authenticated"
	StateRefreshing    State = "refreshing"
	StateLoggedOut     State = "logged_out"
)
