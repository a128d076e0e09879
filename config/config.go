// Package config supplies the externally provided configuration the session
// coordinator depends on: the backend base URL, the environment name driving
// redirect conventions, and token storage settings.
package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config interface {
	GetBaseURL() string
	GetEnv() string
	GetClientID() string
	GetTokenFile() string
	GetTokenKey() []byte
	GetRefreshMargin() time.Duration
}

const (
	baseURLVar       = "API_BASE_URL"
	clientIDVar      = "CLIENT_ID"
	tokenFileVar     = "TOKEN_FILE"
	tokenKeyVar      = "TOKEN_KEY"
	refreshMarginVar = "REFRESH_MARGIN"
)

type EnvVars struct{}

var _ Config = EnvVars{}

// New loads a .env file when present and returns env-var backed config.
func New() Config {
	_ = godotenv.Load()
	return EnvVars{}
}

func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development"
	}
	return env
}

func (EnvVars) GetClientID() string {
	return GetEnv(clientIDVar, "admin-console")
}

// GetTokenFile returns the session snapshot path, defaulting to the user's
// config directory.
func (EnvVars) GetTokenFile() string {
	if file := os.Getenv(tokenFileVar); file != "" {
		return file
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "adminkit", "session.json")
}

// GetTokenKey returns the base64 at-rest encryption key, or nil when token
// files are stored in the clear.
func (EnvVars) GetTokenKey() []byte {
	raw := os.Getenv(tokenKeyVar)
	if raw == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	return key
}

func (EnvVars) GetRefreshMargin() time.Duration {
	raw := os.Getenv(refreshMarginVar)
	if raw == "" {
		return 30 * time.Second
	}
	margin, err := time.ParseDuration(raw)
	if err != nil {
		return 30 * time.Second
	}
	return margin
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
