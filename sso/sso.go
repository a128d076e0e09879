// Package sso implements the relying-party side of an OpenID Connect login:
// provider discovery, authorization URL construction with state, nonce and
// PKCE, and the code exchange yielding a TokenSet for the session
// coordinator.
package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/adminkit/go-session-client/tokenstore"
)

// Config describes the upstream identity provider.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string // defaults to openid, profile, email
}

// Flow is a discovered provider ready to run login round trips.
type Flow struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewFlow discovers the provider's endpoints from its issuer URL.
func NewFlow(ctx context.Context, cfg Config) (*Flow, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("[sso.NewFlow] issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[sso.NewFlow] client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[sso.NewFlow] provider discovery")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &Flow{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthRequest is one login round trip's parameters. State guards the
// callback against CSRF, the nonce binds the ID token to this request and
// the PKCE verifier binds the code exchange to this client.
type AuthRequest struct {
	URL          string
	State        string
	Nonce        string
	CodeVerifier string
}

// Begin creates a login round trip and the URL to send the user to.
func (f *Flow) Begin() (*AuthRequest, error) {
	state, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Begin] state")
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Begin] nonce")
	}
	verifier := oauth2.GenerateVerifier()

	return &AuthRequest{
		URL:          f.oauth.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier)),
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
	}, nil
}

// Result is a completed SSO login.
type Result struct {
	Tokens  tokenstore.TokenSet
	Subject string
	Email   string
}

// Complete exchanges the authorization code, verifies the returned ID token
// against the discovered keys and checks it belongs to req.
func (f *Flow) Complete(ctx context.Context, code string, req *AuthRequest) (*Result, error) {
	if code == "" {
		return nil, errors.New("[Flow.Complete] code is required")
	}

	tok, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(req.CodeVerifier))
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Complete] code exchange")
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[Flow.Complete] no ID token in response")
	}

	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Complete] ID token verification")
	}

	var claims struct {
		Nonce string `json:"nonce"`
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[Flow.Complete] extract claims")
	}
	if claims.Nonce != req.Nonce {
		return nil, errors.New("[Flow.Complete] nonce mismatch")
	}

	ts := tokenstore.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    int(tok.ExpiresIn),
	}
	if ts.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		ts.ExpiresIn = int(time.Until(tok.Expiry).Seconds())
	}

	return &Result{
		Tokens:  ts,
		Subject: idToken.Subject,
		Email:   claims.Email,
	}, nil
}

func randomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
