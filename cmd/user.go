package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/herdwatch/herdwatch/internal/api/auth"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/spf13/cobra"
)

var userCmdFlags struct {
	Role     string
	Password string
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage dashboard accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account",
	Example: `herdwatch user add alice --role admin
echo secret | herdwatch user add bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := database.ParseRole(userCmdFlags.Role)
		if err != nil {
			return err
		}
		hash, err := passwordHash(cmd.InOrStdin())
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		if _, err := db.CreateAccount(cmd.Context(), args[0], hash, role); err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		log.Info("Account created.", "username", args[0], "role", role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		accounts, err := db.ListAccounts(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tROLE\tCREATED") //nolint:errcheck
		for _, a := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Username, a.Role, a.CreatedAt.Format("2006-01-02 15:04")) //nolint:errcheck
		}
		return w.Flush()
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Change the password of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := passwordHash(cmd.InOrStdin())
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		account, err := db.GetAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if _, err := db.UpdateAccount(cmd.Context(), account.Username, hash, account.Role); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		log.Info("Password changed.", "username", account.Username)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		// there is no logged in actor on the shell
		if err := db.DeleteAccount(cmd.Context(), args[0], ""); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		log.Info("Account deleted.", "username", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{userAddCmd, userPasswdCmd} {
		c.Flags().StringVarP(&userCmdFlags.Password, "password", "p", "", "Password (read from stdin if omitted)")
	}
	userAddCmd.Flags().StringVarP(&userCmdFlags.Role, "role", "r", string(database.RoleUser), "Role of the account (admin, user)")

	userCmd.AddCommand(userAddCmd, userListCmd, userPasswdCmd, userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}

func openDB() (*database.Client, error) {
	cfg := loadConfig()
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// passwordHash hashes the --password flag, or the first line of r when the
// flag is empty.
func passwordHash(r io.Reader) (string, error) {
	password := userCmdFlags.Password
	if password == "" {
		if f, ok := r.(*os.File); ok && f == os.Stdin {
			fmt.Fprint(os.Stderr, "Password: ") //nolint:errcheck
		}
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	return auth.HashPassword(password)
}
