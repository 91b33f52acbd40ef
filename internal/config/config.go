// Package config loads client configuration from environment variables.
//
// Every setting has a working default so `shiksha` runs against a local
// backend with no setup:
//
//	SHIKSHA_API_URL   REST base URL, including the /api suffix (default http://localhost:5000/api)
//	SHIKSHA_DATA_DIR  directory for the local client database (default ~/.shiksha)
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultAPIURL = "http://localhost:5000/api"

type Config struct {
	APIBaseURL string // REST base, e.g. "http://localhost:5000/api"
	DataDir    string // local storage directory
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() Config {
	cfg := Config{
		APIBaseURL: defaultAPIURL,
	}

	if v := os.Getenv("SHIKSHA_API_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}

	if v := os.Getenv("SHIKSHA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	} else if home, err := os.UserHomeDir(); err == nil {
		cfg.DataDir = filepath.Join(home, ".shiksha")
	} else {
		cfg.DataDir = "."
	}

	return cfg
}

// SocketURL derives the realtime transport base from the REST base URL:
// the /api path suffix is stripped and the scheme switched to the
// websocket equivalent. "http://host:5000/api" → "ws://host:5000".
func (c Config) SocketURL() string {
	base := strings.TrimSuffix(c.APIBaseURL, "/api")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// DBPath is the location of the local client database inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "shiksha.db")
}
