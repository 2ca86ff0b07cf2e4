package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/herdwatch/herdwatch/internal/api/auth"
	"github.com/herdwatch/herdwatch/internal/legacy"
	"github.com/spf13/cobra"
)

var importUsersCmd = &cobra.Command{
	Use:     "import-users <users.json>",
	Short:   "Import accounts from a users.json file",
	Long:    `Import the flat users.json account file of older installations. Plain text passwords are hashed on import and existing accounts are left untouched.`,
	Example: `herdwatch import-users ./users.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open users file: %w", err)
		}
		defer f.Close() //nolint:errcheck

		users, err := legacy.ReadUsers(f)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		res, err := legacy.ImportUsers(cmd.Context(), db, users, auth.HashPassword)
		if err != nil {
			return err
		}
		log.Info("Import finished.",
			"imported", len(res.Imported),
			"skipped", len(res.Skipped),
			"invalid", len(res.Invalid),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importUsersCmd)
}
