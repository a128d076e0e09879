// Package api is the HTTP client for the admin backend's session endpoints:
// credential login, token refresh, identity resolution, profile updates and
// application configuration.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/adminkit/go-session-client/identity"
	"github.com/adminkit/go-session-client/tenants"
	"github.com/adminkit/go-session-client/tokenstore"
)

const (
	loginPath     = "/api/v1/auth/login"
	refreshPath   = "/api/v1/auth/refresh"
	whoAmIPath    = "/api/v1/users/me"
	usersPath     = "/api/v1/users/"
	appConfigPath = "/api/v1/app/config"

	defaultTimeout = 15 * time.Second

	deviceIDHeader = "X-Device-ID"
)

// Client calls the admin backend. It is stateless: tokens are passed in per
// call, never cached here.
type Client struct {
	baseURL    string
	clientID   string
	deviceID   string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the request logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithClientID sets the OAuth client identifier sent on credential grants.
func WithClientID(clientID string) Option {
	return func(c *Client) {
		c.clientID = clientID
	}
}

// WithDeviceID sets the per-install identifier sent on login and refresh.
func WithDeviceID(deviceID string) Option {
	return func(c *Client) {
		c.deviceID = deviceID
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[api.New] baseURL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Login exchanges credentials for a TokenSet via the password grant. The
// login endpoint takes form-encoded username/password.
func (c *Client) Login(ctx context.Context, username, password string) (*tokenstore.TokenSet, error) {
	conf := &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + loginPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.grantClient())
	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			c.log.Debug().Int("status", retrieveErr.Response.StatusCode).Msg("login rejected")
			return nil, errors.Wrap(ErrUnauthorized, "[Client.Login] credential grant rejected")
		}
		return nil, errors.Wrap(err, "[Client.Login] token request")
	}

	ts := &tokenstore.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    int(tok.ExpiresIn),
	}
	if ts.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		ts.ExpiresIn = int(time.Until(tok.Expiry).Seconds())
	}
	return ts, nil
}

// Refresh exchanges a refresh token for a new TokenSet. A rejected refresh
// token surfaces as ErrUnauthorized; the coordinator treats that as terminal
// for the session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*tokenstore.TokenSet, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var ts tokenstore.TokenSet
	if err := c.do(ctx, http.MethodPost, refreshPath, "", body, &ts); err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh]")
	}
	return &ts, nil
}

// WhoAmI resolves the identity behind accessToken.
func (c *Client) WhoAmI(ctx context.Context, accessToken string) (*identity.Identity, error) {
	var ident identity.Identity
	if err := c.do(ctx, http.MethodGet, whoAmIPath, accessToken, nil, &ident); err != nil {
		return nil, errors.Wrap(err, "[Client.WhoAmI]")
	}
	return &ident, nil
}

// UpdateUser mutates the profile fields of the user with userID and returns
// the updated record.
func (c *Client) UpdateUser(ctx context.Context, accessToken, userID string, update identity.ProfileUpdate) (*identity.Identity, error) {
	if userID == "" {
		return nil, errors.New("[Client.UpdateUser] userID is required")
	}
	var ident identity.Identity
	if err := c.do(ctx, http.MethodPatch, usersPath+userID, accessToken, update, &ident); err != nil {
		return nil, errors.Wrap(err, "[Client.UpdateUser]")
	}
	return &ident, nil
}

// AppConfig fetches the application configuration. The bearer token is
// optional: an anonymous client still resolves the multi-tenancy state.
func (c *Client) AppConfig(ctx context.Context, accessToken string) (*tenants.AppConfig, error) {
	var cfg tenants.AppConfig
	if err := c.do(ctx, http.MethodGet, appConfigPath, accessToken, nil, &cfg); err != nil {
		return nil, errors.Wrap(err, "[Client.AppConfig]")
	}
	return &cfg, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, response any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if c.deviceID != "" {
		req.Header.Set(deviceIDHeader, c.deviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "perform request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.Wrapf(ErrUnauthorized, "%s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Op: method + " " + path, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// grantClient reuses the configured transport for oauth2 grant requests and
// stamps the device header on them.
func (c *Client) grantClient() *http.Client {
	hc := *c.httpClient
	hc.Transport = &headerTransport{base: c.httpClient.Transport, deviceID: c.deviceID}
	return &hc
}

type headerTransport struct {
	base     http.RoundTripper
	deviceID string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.deviceID != "" {
		req.Header.Set(deviceIDHeader, t.deviceID)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
