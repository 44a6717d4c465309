package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chacrab/chacrab/internal/config"
	"github.com/chacrab/chacrab/internal/redact"
	"github.com/chacrab/chacrab/internal/sessionkey"
	"github.com/chacrab/chacrab/pkg/authsvc"
	"github.com/chacrab/chacrab/pkg/repository"
	"github.com/chacrab/chacrab/pkg/repository/mongo"
	"github.com/chacrab/chacrab/pkg/repository/postgres"
	"github.com/chacrab/chacrab/pkg/repository/sqlite"
	"github.com/chacrab/chacrab/pkg/vaultsvc"
)

// Global flags, package-level per the teacher's root.go convention:
// every subcommand file wires its own flags in its own init(), but these
// apply to the whole command tree.
var (
	flagBackend            string
	flagDatabaseURL        string
	flagJSON               bool
	flagQuiet              bool
	flagNoColor            bool
	flagSessionTimeoutSecs int
)

// Wired by rootCmd's PersistentPreRunE; every subcommand's RunE reads
// these rather than opening its own backend connection, mirroring the
// teacher's package-level *vault.Vault.
var (
	repo      repository.Repository
	authSvc   *authsvc.Service
	vaultSvc  *vaultsvc.Service
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "chacrab",
	Short:         "chacrab is a zero-knowledge, offline-first password manager",
	Long:          "A CLI password manager that encrypts every secret on the client: the backend only ever sees ciphertext, nonces, salts, and non-sensitive metadata.",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE runs before every subcommand and opens the
	// configured backend. "config" is the one command that must work
	// without a vault present, so it skips this entirely.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "config" {
			return nil
		}
		return setup(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "storage backend: sqlite, postgres, or mongo")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "backend connection string (ignored for sqlite unless given a file path)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().IntVar(&flagSessionTimeoutSecs, "session-timeout-secs", 0, "override the configured inactivity timeout")
}

// setup loads the persisted config (overridden by flags), opens the
// configured backend, and wires the auth/vault services every other
// command's RunE depends on.
func setup(ctx context.Context) error {
	color.NoColor = flagNoColor || !term.IsTerminal(int(os.Stdout.Fd()))

	configPath, err := config.DefaultPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	if cfg.Backend == "" {
		cfg.Backend = "sqlite"
	}
	if err := config.ValidateBackend(cfg.Backend); err != nil {
		return err
	}
	if flagDatabaseURL != "" {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if flagSessionTimeoutSecs > 0 {
		cfg.SessionTimeoutSecs = flagSessionTimeoutSecs
	}
	if cfg.SessionTimeoutSecs <= 0 {
		cfg.SessionTimeoutSecs = config.DefaultSessionTimeoutSecs
	}
	appConfig = cfg

	r, err := openRepository(ctx, cfg.Backend, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", redact.ErrBackendUnavailable, err)
	}
	if err := r.InitSchema(ctx); err != nil {
		return fmt.Errorf("%w: %v", redact.ErrBackendUnavailable, err)
	}
	repo = r

	authSvc = authsvc.New(repo, sessionkey.NewOSHolder(), time.Duration(cfg.SessionTimeoutSecs)*time.Second)
	vaultSvc = vaultsvc.New(repo)
	return nil
}

// openRepository dispatches to the concrete backend named by backend,
// the runtime variant-tagged dispatch spec.md §9 describes in place of a
// plugin system.
func openRepository(ctx context.Context, backend, databaseURL string) (repository.Repository, error) {
	switch backend {
	case "sqlite":
		path := databaseURL
		if path == "" {
			var err error
			path, err = defaultSQLitePath()
			if err != nil {
				return nil, err
			}
		}
		return sqlite.Open(path)
	case "postgres":
		if databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for backend %q", backend)
		}
		return postgres.Connect(ctx, databaseURL)
	case "mongo":
		if databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for backend %q", backend)
		}
		return mongo.Connect(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}
}

func defaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".chacrab")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create vault directory: %w", err)
	}
	return filepath.Join(dir, "vault.db"), nil
}

// readPassword reads a password from the terminal without echoing it,
// exactly as the teacher's initCmd/ensureUnlocked do.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}
