package auth

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/herdwatch/herdwatch/internal/database"
)

// AccountStore is the subset of database.AccountDB needed to seed accounts.
type AccountStore interface {
	CountAccounts(ctx context.Context) (int64, error)
	CreateAccount(ctx context.Context, username, passwordHash string, role database.Role) (*database.Account, error)
}

// EnsureAdmin creates an admin account when no account exists yet.
// It reports whether an account was created.
func EnsureAdmin(ctx context.Context, store AccountStore, username, password string) (bool, error) {
	count, err := store.CountAccounts(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	if _, err := store.CreateAccount(ctx, username, hash, database.RoleAdmin); err != nil {
		return false, fmt.Errorf("failed to create admin account: %w", err)
	}
	log.Info("Created initial admin account.", "username", username)
	return true, nil
}
