package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ DB = (*Client)(nil) // Ensure Client implements DB

// Client wraps the gorm.DB instance.
type Client struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used to timestamp new readings.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a new database connection and performs migrations.
func New(dbpath string, opts ...Option) (*Client, error) {
	if dir := filepath.Dir(dbpath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbpath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.AutoMigrate(
		&Reading{},
		&Account{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c := &Client{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
