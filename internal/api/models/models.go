package models

import "time"

// User is the identity of the current session.
type User struct {
	Username string
	Role     string
	IsAdmin  bool
}

// ReadingItem is a reading prepared for display.
type ReadingItem struct {
	ID          uint
	Timestamp   time.Time
	Temperature string
	// Numeric is false when the stored temperature is not a number.
	Numeric  bool
	ImageURL string
	// HasImage is false when the image file no longer exists.
	HasImage bool
}

// AccountItem is an account without its password hash.
type AccountItem struct {
	Username  string
	Role      string
	IsAdmin   bool
	CreatedAt time.Time
}

// ContentUsage summarises the image directory for admins.
type ContentUsage struct {
	Files       int
	Bytes       uint64
	DiskFree    uint64
	UsedPercent float64
}
