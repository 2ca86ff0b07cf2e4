// Package legacy imports the flat users.json account file of older deployments.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/herdwatch/herdwatch/internal/database"
)

// User is one entry of users.json. Passwords are stored in plain text there.
type User struct {
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ReadUsers decodes a users.json document mapping usernames to users.
func ReadUsers(r io.Reader) (map[string]User, error) {
	users := make(map[string]User)
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode users file: %w", err)
	}
	return users, nil
}

// Result summarises an import.
type Result struct {
	Imported []string
	Skipped  []string
	Invalid  []string
}

// HashFunc turns a plain text password into a stored hash.
type HashFunc func(password string) (string, error)

// AccountCreator creates accounts.
type AccountCreator interface {
	CreateAccount(ctx context.Context, username, passwordHash string, role database.Role) (*database.Account, error)
}

// ImportUsers creates an account for every user. Existing usernames are
// skipped; entries with an empty username or password or an unknown role are
// reported as invalid. Users are processed in username order.
func ImportUsers(ctx context.Context, accounts AccountCreator, users map[string]User, hash HashFunc) (*Result, error) {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &Result{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		u := users[name]
		role, err := database.ParseRole(u.Role)
		if name == "" || u.Password == "" || err != nil {
			log.Warn("Skipping invalid user entry.", "username", name, "role", u.Role)
			res.Invalid = append(res.Invalid, name)
			continue
		}

		passwordHash, err := hash(u.Password)
		if err != nil {
			return res, fmt.Errorf("failed to hash password of %q: %w", name, err)
		}

		if _, err := accounts.CreateAccount(ctx, name, passwordHash, role); err != nil {
			if errors.Is(err, database.ErrAccountExists) {
				log.Info("Account already exists, skipping.", "username", name)
				res.Skipped = append(res.Skipped, name)
				continue
			}
			return res, fmt.Errorf("failed to import %q: %w", name, err)
		}
		res.Imported = append(res.Imported, name)
	}
	return res, nil
}
