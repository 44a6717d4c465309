package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chacrab/chacrab/internal/config"
	"github.com/chacrab/chacrab/pkg/sync"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bidirectionally synchronize with a remote vault of the same shape",
	Long:  "Reads CHACRAB_SYNC_BACKEND, CHACRAB_SYNC_DATABASE_URL, CHACRAB_SYNC_AUTH_TOKEN, and CHACRAB_SYNC_REQUIRE_TLS to locate the remote. The sync engine works on ciphertext alone and never needs the session key.",
	RunE: func(cmd *cobra.Command, args []string) error {
		syncCfg, err := config.LoadSyncConfig()
		if err != nil {
			return err
		}
		if syncCfg.Backend == "" {
			return fmt.Errorf("CHACRAB_SYNC_BACKEND is not set")
		}
		if err := sync.ValidateTransportPolicy(syncCfg.Backend, syncCfg.DatabaseURL, syncCfg.AuthToken, syncCfg.RequireTLS); err != nil {
			return err
		}

		ctx := cmd.Context()
		remote, err := openRepository(ctx, syncCfg.Backend, syncCfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open remote: %w", err)
		}
		defer remote.Close(ctx)

		if err := remote.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize remote schema: %w", err)
		}

		release, err := acquireSyncLock(appConfig.Backend, syncCfg.Backend)
		if err != nil {
			return err
		}
		defer release()

		report, err := sync.New().Bidirectional(ctx, repo, remote)
		if err != nil {
			return err
		}

		if !flagQuiet {
			fmt.Printf("Sync complete: %d uploaded, %d downloaded, %d tombstoned, %d conflicts resolved, %d replays rejected.\n",
				report.Uploaded, report.Downloaded, report.Tombstoned, report.ConflictsResolved, report.ReplaysRejected)
		}
		return nil
	},
}

// acquireSyncLock enforces spec.md §5's single-flight rule: at most one
// sync pass per (local, remote) pair at a time. It uses an exclusive
// create on a lock file next to the config file, since chacrab has no
// long-lived daemon process to hold an in-memory mutex across
// invocations.
func acquireSyncLock(localBackend, remoteBackend string) (release func(), err error) {
	path, err := syncLockPath(localBackend, remoteBackend)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, sync.ErrBusy
		}
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	f.Close()

	return func() { _ = os.Remove(path) }, nil
}

func syncLockPath(localBackend, remoteBackend string) (string, error) {
	configPath, err := config.DefaultPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(configPath), fmt.Sprintf("sync-%s-%s.lock", localBackend, remoteBackend)), nil
}
