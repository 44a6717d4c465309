// Package config loads and persists Chacrab's small JSON configuration
// document and binds the CHACRAB_SYNC_* environment variables the sync
// command reads, following the cobra+viper wiring in
// spitfy-gophkeeper's cmd/client/cmd/root.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultSessionTimeoutSecs is used when neither the config file nor
	// --session-timeout-secs sets one.
	DefaultSessionTimeoutSecs = 900

	defaultConfigDirName  = ".chacrab"
	defaultConfigFileName = "config.json"
	envPrefix             = "CHACRAB"
	minSyncAuthTokenLen   = 16
)

// Config is the persisted document spec.md §6.7 describes: written after
// a successful init, read by every later command unless a flag overrides
// a field. Environment variables do not override these fields; only
// CHACRAB_CONFIG_PATH changes where the file is read from.
type Config struct {
	Backend            string `json:"backend" mapstructure:"backend"`
	DatabaseURL        string `json:"database_url" mapstructure:"database_url"`
	SessionTimeoutSecs int    `json:"session_timeout_secs" mapstructure:"session_timeout_secs"`
}

// SyncConfig holds the CHACRAB_SYNC_* environment variables spec.md §6.6
// defines. It is never persisted to disk: an auth token has no business
// living next to backend/database_url in a config file.
type SyncConfig struct {
	Backend     string
	DatabaseURL string
	AuthToken   string
	RequireTLS  bool
}

var validBackends = map[string]bool{"sqlite": true, "postgres": true, "mongo": true}

// ValidateBackend reports whether name is one of the three backends
// chacrab knows how to open.
func ValidateBackend(name string) error {
	if !validBackends[name] {
		return fmt.Errorf("config: unsupported backend %q (want sqlite, postgres, or mongo)", name)
	}
	return nil
}

// DefaultPath returns where the config file lives, honoring
// CHACRAB_CONFIG_PATH when set.
func DefaultPath() (string, error) {
	if p := os.Getenv(envPrefix + "_CONFIG_PATH"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultConfigDirName, defaultConfigFileName), nil
}

// Load reads the config file at path. A missing file is not an error:
// callers fall back to the defaults and to their own flags.
func Load(path string) (*Config, error) {
	cfg := &Config{SessionTimeoutSecs: DefaultSessionTimeoutSecs}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("session_timeout_secs", DefaultSessionTimeoutSecs)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating its parent
// directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// LoadSyncConfig reads the CHACRAB_SYNC_* environment variables spec.md
// §6.6 defines for the sync command. It is environment-only by design
// and never consults the persisted config file.
func LoadSyncConfig() (*SyncConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault("sync_require_tls", true)
	for _, key := range []string{"sync_backend", "sync_database_url", "sync_auth_token", "sync_require_tls"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	cfg := &SyncConfig{
		Backend:     v.GetString("sync_backend"),
		DatabaseURL: v.GetString("sync_database_url"),
		AuthToken:   v.GetString("sync_auth_token"),
		RequireTLS:  v.GetBool("sync_require_tls"),
	}

	if cfg.Backend != "" && cfg.Backend != "sqlite" && len(cfg.AuthToken) < minSyncAuthTokenLen {
		return nil, fmt.Errorf("config: %s_SYNC_AUTH_TOKEN must be at least %d characters for backend %q", envPrefix, minSyncAuthTokenLen, cfg.Backend)
	}
	return cfg, nil
}
