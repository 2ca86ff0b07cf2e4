package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound is returned when no account has the requested username.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account with a taken username.
	ErrAccountExists = errors.New("account already exists")
	// ErrSelfDelete is returned when an admin tries to delete their own account.
	ErrSelfDelete = errors.New("cannot delete the account you are logged in with")
	// ErrInvalidRole is returned for roles other than admin and user.
	ErrInvalidRole = errors.New("invalid role")
)

// Role is the permission level of an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Account is a dashboard login. Username is unique and case-sensitive.
// Password holds a bcrypt hash, never the plain text.
type Account struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	Role      Role   `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the account has the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (c *Client) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&Account{}).Count(&count).Error; err != nil {
		log.Error("failed to count accounts", "error", err)
		return 0, err
	}
	return count, nil
}

func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	accounts := make([]Account, 0)
	if err := c.db.WithContext(ctx).Order("username ASC").Find(&accounts).Error; err != nil {
		log.Error("failed to list accounts", "error", err)
		return nil, err
	}
	return accounts, nil
}

func (c *Client) GetAccount(ctx context.Context, username string) (*Account, error) {
	var account Account
	if err := c.db.WithContext(ctx).Where("username = ?", username).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		log.Error("failed to get account", "username", username, "error", err)
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts a new account. The unique index on username makes
// concurrent creates of the same name fail with ErrAccountExists.
func (c *Client) CreateAccount(ctx context.Context, username, passwordHash string, role Role) (*Account, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	account := Account{
		Username: username,
		Password: passwordHash,
		Role:     role,
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAccountExists
		}
		if err := tx.Create(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAccountExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAccountExists) {
			log.Error("failed to create account", "username", username, "error", err)
		}
		return nil, err
	}
	return &account, nil
}

// UpdateAccount changes password and role of an existing account in one
// transaction. An empty passwordHash keeps the current password.
func (c *Client) UpdateAccount(ctx context.Context, username, passwordHash string, role Role) (*Account, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	var account Account
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		account.Role = role
		if passwordHash != "" {
			account.Password = passwordHash
		}
		return tx.Save(&account).Error
	})
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			log.Error("failed to update account", "username", username, "error", err)
		}
		return nil, err
	}
	return &account, nil
}

// DeleteAccount removes username. actor is the username of the session
// performing the delete; deleting it is refused. Unknown usernames are a no-op.
func (c *Client) DeleteAccount(ctx context.Context, username, actor string) error {
	if username == actor {
		return ErrSelfDelete
	}
	if err := c.db.WithContext(ctx).Where("username = ?", username).Delete(&Account{}).Error; err != nil {
		log.Error("failed to delete account", "username", username, "error", err)
		return err
	}
	return nil
}
