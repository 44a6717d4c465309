package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chacrab/chacrab/internal/cli"
	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/vaultsvc"
)

var (
	addTitle    string
	addUsername string
	addURL      string
	addPassword string
	addNotes    string
	addFields   []string
)

var (
	updateID       string
	updateLabel    string
	updateTitle    string
	updateUsername string
	updateURL      string
	updatePassword string
	updateNotes    string
	updateFields   []string
)

func init() {
	rootCmd.AddCommand(addPasswordCmd)
	rootCmd.AddCommand(addNoteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(updateCmd)
	updateCmd.AddCommand(updatePasswordCmd)
	updateCmd.AddCommand(updateSecretNotesCmd)

	addPasswordCmd.Flags().StringVar(&addTitle, "title", "", "short label for the item (required)")
	addPasswordCmd.Flags().StringVar(&addUsername, "username", "", "username associated with the password")
	addPasswordCmd.Flags().StringVar(&addURL, "url", "", "URL associated with the password")
	addPasswordCmd.Flags().StringVar(&addPassword, "password", "", "password value (prompted securely if omitted)")
	addPasswordCmd.Flags().StringArrayVar(&addFields, "field", nil, "custom field (name=value, can be repeated)")
	_ = addPasswordCmd.MarkFlagRequired("title")

	addNoteCmd.Flags().StringVar(&addTitle, "title", "", "short label for the note (required)")
	addNoteCmd.Flags().StringVar(&addNotes, "notes", "", "note body (read from stdin if omitted)")
	addNoteCmd.Flags().StringArrayVar(&addFields, "field", nil, "custom field (name=value, can be repeated)")
	_ = addNoteCmd.MarkFlagRequired("title")

	for _, c := range []*cobra.Command{updatePasswordCmd, updateSecretNotesCmd} {
		c.Flags().StringVar(&updateID, "id", "", "full or prefix item id")
		c.Flags().StringVar(&updateLabel, "label", "", "item title, matched case-insensitively")
		c.Flags().StringVar(&updateTitle, "title", "", "new title")
		c.Flags().StringVar(&updateUsername, "username", "", "new username")
		c.Flags().StringVar(&updateURL, "url", "", "new URL")
		c.Flags().StringArrayVar(&updateFields, "field", nil, "custom field to add or replace (name=value, can be repeated)")
	}
	updatePasswordCmd.Flags().StringVar(&updatePassword, "password", "", "new password value")
	updateSecretNotesCmd.Flags().StringVar(&updateNotes, "notes", "", "new note body")
}

var addPasswordCmd = &cobra.Command{
	Use:   "add-password",
	Short: "Store a new password item",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := authSvc.Unlock()
		if err != nil {
			return err
		}

		password := addPassword
		if password == "" {
			password, err = readPassword("Enter password (will not echo): ")
			if err != nil {
				return err
			}
		}

		fields, err := parseFieldFlags(addFields)
		if err != nil {
			return err
		}

		item, err := vaultSvc.AddPassword(cmd.Context(), key, addTitle, addUsername, addURL, password, fields)
		if err != nil {
			return err
		}

		return printCreated(item)
	},
}

var addNoteCmd = &cobra.Command{
	Use:   "add-note",
	Short: "Store a new secure note",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := authSvc.Unlock()
		if err != nil {
			return err
		}

		notes := addNotes
		if notes == "" {
			fmt.Fprint(os.Stderr, "Enter note body (Ctrl+D to finish):\n")
			body, readErr := io.ReadAll(os.Stdin)
			if readErr != nil {
				return fmt.Errorf("read note body: %w", readErr)
			}
			notes = strings.TrimSuffix(string(body), "\n")
		}

		fields, err := parseFieldFlags(addFields)
		if err != nil {
			return err
		}

		item, err := vaultSvc.AddNote(cmd.Context(), key, addTitle, notes, fields)
		if err != nil {
			return err
		}

		return printCreated(item)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored items (metadata only, nothing is decrypted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := authSvc.Unlock(); err != nil {
			return err
		}

		items, err := vaultSvc.List(cmd.Context())
		if err != nil {
			return err
		}

		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(itemDTOs(items))
		}

		if len(items) == 0 {
			if !flagQuiet {
				fmt.Println("No items stored.")
			}
			return nil
		}
		for _, item := range items {
			fmt.Printf("%s  %-8s  %-24s  %s\n", cli.ShortID(item.ID), item.Kind, item.Title, item.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id-or-prefix>",
	Short: "Reveal a single item's decrypted payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := authSvc.Unlock()
		if err != nil {
			return err
		}

		id, err := resolveItem(cmd, args[0])
		if err != nil {
			return err
		}

		item, payload, err := vaultSvc.Show(cmd.Context(), key, id)
		if err != nil {
			return err
		}

		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(struct {
				itemDTO
				Payload model.EncryptedPayload `json:"payload"`
			}{itemDTO: itemDTO{}.from(*item), Payload: *payload})
		}

		fmt.Printf("ID:       %s\n", item.ID)
		fmt.Printf("Kind:     %s\n", item.Kind)
		fmt.Printf("Title:    %s\n", item.Title)
		if item.Username != "" {
			fmt.Printf("Username: %s\n", item.Username)
		}
		if item.URL != "" {
			fmt.Printf("URL:      %s\n", item.URL)
		}
		switch item.Kind {
		case model.KindPassword:
			fmt.Printf("Password: %s\n", payload.Password)
		case model.KindNote:
			fmt.Printf("Notes:    %s\n", payload.Notes)
		}
		for name, value := range payload.CustomFields {
			fmt.Printf("%s: %s\n", name, value)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id-or-prefix>",
	Short: "Delete an item (recorded as a tombstone for sync)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := authSvc.Unlock(); err != nil {
			return err
		}

		id, err := resolveItem(cmd, args[0])
		if err != nil {
			return err
		}

		if err := vaultSvc.Delete(cmd.Context(), id); err != nil {
			return err
		}

		if !flagQuiet {
			fmt.Printf("Deleted %s.\n", cli.ShortID(id))
		}
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update an existing item",
}

var updatePasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Update a password item's metadata or password value",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd, model.KindPassword)
	},
}

var updateSecretNotesCmd = &cobra.Command{
	Use:   "secret-notes",
	Short: "Update a secure note's metadata or note body",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd, model.KindNote)
	},
}

func runUpdate(cmd *cobra.Command, wantKind model.ItemKind) error {
	key, err := authSvc.Unlock()
	if err != nil {
		return err
	}

	id, err := resolveItemByIDOrLabel(cmd)
	if err != nil {
		return err
	}

	current, err := vaultSvc.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if current.Kind != wantKind {
		return fmt.Errorf("item %s is a %s, not a %s", cli.ShortID(id), current.Kind, wantKind)
	}

	patch := vaultsvc.ItemUpdate{}
	if cmd.Flags().Changed("title") {
		patch.Title = &updateTitle
	}
	if cmd.Flags().Changed("username") {
		patch.Username = &updateUsername
	}
	if cmd.Flags().Changed("url") {
		patch.URL = &updateURL
	}

	secretChanged := cmd.Flags().Changed("password") || cmd.Flags().Changed("notes") || len(updateFields) > 0
	if secretChanged {
		_, existing, err := vaultSvc.Show(cmd.Context(), key, id)
		if err != nil {
			return err
		}
		mergedFields, err := mergeFields(existing.CustomFields, updateFields)
		if err != nil {
			return err
		}

		var payload model.EncryptedPayload
		switch wantKind {
		case model.KindPassword:
			password := existing.Password
			if cmd.Flags().Changed("password") {
				password = updatePassword
			}
			payload = model.NewPasswordPayload(password, mergedFields)
		case model.KindNote:
			notes := existing.Notes
			if cmd.Flags().Changed("notes") {
				notes = updateNotes
			}
			payload = model.NewNotePayload(notes, mergedFields)
		}
		patch.Payload = &payload
	}

	if _, err := vaultSvc.Update(cmd.Context(), key, id, patch); err != nil {
		return err
	}
	if !flagQuiet {
		fmt.Printf("Updated %s.\n", cli.ShortID(id))
	}
	return nil
}

// resolveItem resolves idOrPrefix (a full id or an unambiguous id
// prefix) against the non-deleted items in the vault.
func resolveItem(cmd *cobra.Command, idOrPrefix string) (uuid.UUID, error) {
	items, err := vaultSvc.List(cmd.Context())
	if err != nil {
		return uuid.Nil, err
	}
	return cli.ResolveID(items, idOrPrefix)
}

// resolveItemByIDOrLabel resolves the update subcommands' --id or
// --label flag (mutually exclusive) against the vault's items.
func resolveItemByIDOrLabel(cmd *cobra.Command) (uuid.UUID, error) {
	if updateID == "" && updateLabel == "" {
		return uuid.Nil, fmt.Errorf("one of --id or --label is required")
	}
	if updateID != "" && updateLabel != "" {
		return uuid.Nil, fmt.Errorf("--id and --label are mutually exclusive")
	}

	items, err := vaultSvc.List(cmd.Context())
	if err != nil {
		return uuid.Nil, err
	}
	if updateID != "" {
		return cli.ResolveID(items, updateID)
	}
	return cli.ResolveLabel(items, updateLabel)
}

// parseFieldFlags parses repeated --field name=value flags into a
// custom_fields map.
func parseFieldFlags(fields []string) (map[string]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --field %q, want name=value", f)
		}
		out[name] = value
	}
	return out, nil
}

// mergeFields overlays the name=value pairs in fields onto existing,
// without disturbing custom fields the caller did not mention.
func mergeFields(existing map[string]string, fields []string) (map[string]string, error) {
	overrides, err := parseFieldFlags(fields)
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return existing, nil
	}
	merged := make(map[string]string, len(existing)+len(overrides))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged, nil
}

func printCreated(item *model.VaultItem) error {
	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(itemDTO{}.from(*item))
	}
	if !flagQuiet {
		fmt.Printf("Created %s (%s).\n", cli.ShortID(item.ID), item.Kind)
	}
	return nil
}
