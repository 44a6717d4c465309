package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chacrab/chacrab/pkg/backup"
)

func init() {
	rootCmd.AddCommand(backupExportCmd)
	rootCmd.AddCommand(backupImportCmd)
}

var backupExportCmd = &cobra.Command{
	Use:   "backup-export <path>",
	Short: "Export an encrypted backup envelope of the whole vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := authSvc.Unlock()
		if err != nil {
			return err
		}

		auth, err := repo.LoadAuth(cmd.Context())
		if err != nil {
			return err
		}

		out, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer out.Close()

		stats, err := backup.Export(cmd.Context(), repo, key, auth, time.Now(), out)
		if err != nil {
			return err
		}

		if !flagQuiet {
			fmt.Printf("Exported %d items and %d tombstones to %s.\n", stats.ItemCount, stats.TombstoneCount, args[0])
		}
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "backup-import <path>",
	Short: "Import an encrypted backup envelope, applying last-write-wins",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := authSvc.Unlock()
		if err != nil {
			return err
		}

		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open backup file: %w", err)
		}
		defer in.Close()

		stats, err := backup.Import(cmd.Context(), repo, key, in)
		if err != nil {
			return err
		}

		if !flagQuiet {
			fmt.Printf("Applied %d records, skipped %d already up to date.\n", stats.Applied, stats.Skipped)
		}
		return nil
	},
}
