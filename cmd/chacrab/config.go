package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chacrab/chacrab/internal/config"
)

var (
	configSetBackend            string
	configSetDatabaseURL        string
	configSetSessionTimeoutSecs int
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVar(&configSetBackend, "backend", "", "set the default storage backend")
	configCmd.Flags().StringVar(&configSetDatabaseURL, "database-url", "", "set the default backend connection string")
	configCmd.Flags().IntVar(&configSetSessionTimeoutSecs, "session-timeout-secs", 0, "set the default session inactivity timeout")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update the persisted configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		changed := false
		if cmd.Flags().Changed("backend") {
			if err := config.ValidateBackend(configSetBackend); err != nil {
				return err
			}
			cfg.Backend = configSetBackend
			changed = true
		}
		if cmd.Flags().Changed("database-url") {
			cfg.DatabaseURL = configSetDatabaseURL
			changed = true
		}
		if cmd.Flags().Changed("session-timeout-secs") {
			cfg.SessionTimeoutSecs = configSetSessionTimeoutSecs
			changed = true
		}

		if changed {
			if err := config.Save(path, cfg); err != nil {
				return err
			}
		}

		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(cfg)
		}
		fmt.Printf("backend: %s\ndatabase_url: %s\nsession_timeout_secs: %d\n", cfg.Backend, cfg.DatabaseURL, cfg.SessionTimeoutSecs)
		return nil
	},
}
