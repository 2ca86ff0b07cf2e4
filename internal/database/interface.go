package database

import (
	"context"

	"gorm.io/gorm"
)

// DB is the storage interface used by the API and the CLI.
type DB interface {
	ReadingDB
	AccountDB
	Close() error
}

// ReadingQuery is a filter configuration for readings.
// Scopes are pushed down into SQL; Match is applied to every returned row,
// so a query that cannot be expressed in SQL still filters correctly.
type ReadingQuery interface {
	Scopes() []func(*gorm.DB) *gorm.DB
	Match(r *Reading) bool
}

// ReadingDB is the record store for sensor readings.
type ReadingDB interface {
	CreateReading(ctx context.Context, temperature, imagePath string) (*Reading, error)
	GetReading(ctx context.Context, id uint) (*Reading, error)
	GetReadings(ctx context.Context, query ReadingQuery) ([]Reading, error)
	DeleteReading(ctx context.Context, id uint) (*Reading, error)
}

// AccountDB is the account store.
type AccountDB interface {
	CountAccounts(ctx context.Context) (int64, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, username string) (*Account, error)
	CreateAccount(ctx context.Context, username, passwordHash string, role Role) (*Account, error)
	UpdateAccount(ctx context.Context, username, passwordHash string, role Role) (*Account, error)
	DeleteAccount(ctx context.Context, username, actor string) error
}
