package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chacrab/chacrab/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Register a new vault with a master password",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Enter master password: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("Confirm master password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		if _, err := authSvc.Register(cmd.Context(), password); err != nil {
			return err
		}

		configPath, err := config.DefaultPath()
		if err != nil {
			return err
		}
		if err := config.Save(configPath, appConfig); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		if !flagQuiet {
			fmt.Printf("Vault initialized (%s backend). Run \"chacrab login\" on future sessions.\n", appConfig.Backend)
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Start a session by verifying the master password",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Enter master password: ")
		if err != nil {
			return err
		}

		if _, err := authSvc.Login(cmd.Context(), password); err != nil {
			return err
		}

		if !flagQuiet {
			fmt.Println("Logged in.")
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authSvc.Logout(); err != nil {
			return err
		}
		if !flagQuiet {
			fmt.Println("Logged out.")
		}
		return nil
	},
}
