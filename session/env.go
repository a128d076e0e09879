package session

import (
	"github.com/rs/zerolog"

	"github.com/adminkit/go-session-client/api"
	"github.com/adminkit/go-session-client/config"
	"github.com/adminkit/go-session-client/tenants"
	"github.com/adminkit/go-session-client/tokenstore"
)

// FromEnv builds a Coordinator wired to the backend described by the process
// environment: file-backed (optionally encrypted) token storage, the API
// client for API_BASE_URL, and redirect conventions for ENV. Extra options
// override the environment-derived ones.
func FromEnv(log zerolog.Logger, options ...Option) (*Coordinator, error) {
	cfg := config.New()

	var fileOpts []tokenstore.FileOption
	if key := cfg.GetTokenKey(); len(key) > 0 {
		fileOpts = append(fileOpts, tokenstore.WithEncryptionKey(key))
	}

	var backend tokenstore.Backend
	if fb, err := tokenstore.NewFileBackend(cfg.GetTokenFile(), fileOpts...); err != nil {
		// Store falls back to non-persistent mode rather than failing the
		// whole coordinator.
		log.Warn().Err(err).Msg("token file unavailable, sessions will not persist")
	} else {
		backend = fb
	}
	store := tokenstore.New(backend, tokenstore.WithLogger(log))

	client, err := api.New(cfg.GetBaseURL(),
		api.WithClientID(cfg.GetClientID()),
		api.WithDeviceID(store.DeviceID()),
		api.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	opts := append([]Option{
		WithLogger(log),
		WithSafetyMargin(cfg.GetRefreshMargin()),
		WithRedirectOptions(tenants.RedirectOptions{Environment: cfg.GetEnv()}),
	}, options...)
	return New(client, store, opts...)
}
