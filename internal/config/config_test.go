package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTimeoutSecs != DefaultSessionTimeoutSecs {
		t.Fatalf("SessionTimeoutSecs = %d, want %d", cfg.SessionTimeoutSecs, DefaultSessionTimeoutSecs)
	}
	if cfg.Backend != "" || cfg.DatabaseURL != "" {
		t.Fatalf("Load() of missing file = %+v, want zero-value backend/database_url", cfg)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	want := &Config{Backend: "postgres", DatabaseURL: "postgres://localhost/chacrab", SessionTimeoutSecs: 300}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *got != *want {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestValidateBackend(t *testing.T) {
	for _, name := range []string{"sqlite", "postgres", "mongo"} {
		if err := ValidateBackend(name); err != nil {
			t.Errorf("ValidateBackend(%q) error = %v", name, err)
		}
	}
	if err := ValidateBackend("mysql"); err == nil {
		t.Error("ValidateBackend(\"mysql\") error = nil, want error")
	}
}

func TestLoadSyncConfigDefaults(t *testing.T) {
	for _, key := range []string{"CHACRAB_SYNC_BACKEND", "CHACRAB_SYNC_DATABASE_URL", "CHACRAB_SYNC_AUTH_TOKEN", "CHACRAB_SYNC_REQUIRE_TLS"} {
		t.Setenv(key, "")
	}
	os.Unsetenv("CHACRAB_SYNC_REQUIRE_TLS")

	cfg, err := LoadSyncConfig()
	if err != nil {
		t.Fatalf("LoadSyncConfig() error = %v", err)
	}
	if !cfg.RequireTLS {
		t.Fatal("LoadSyncConfig() RequireTLS = false, want true by default")
	}
}

func TestLoadSyncConfigRejectsShortTokenForNonSqlite(t *testing.T) {
	t.Setenv("CHACRAB_SYNC_BACKEND", "postgres")
	t.Setenv("CHACRAB_SYNC_AUTH_TOKEN", "short")

	if _, err := LoadSyncConfig(); err == nil {
		t.Fatal("LoadSyncConfig() error = nil, want error for short auth token")
	}
}

func TestLoadSyncConfigAcceptsLongTokenForNonSqlite(t *testing.T) {
	t.Setenv("CHACRAB_SYNC_BACKEND", "postgres")
	t.Setenv("CHACRAB_SYNC_AUTH_TOKEN", "0123456789abcdef")

	cfg, err := LoadSyncConfig()
	if err != nil {
		t.Fatalf("LoadSyncConfig() error = %v", err)
	}
	if cfg.Backend != "postgres" {
		t.Fatalf("LoadSyncConfig() Backend = %q, want postgres", cfg.Backend)
	}
}
