package models

import (
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/storage"
	"github.com/samber/lo"
)

// ImageLocator resolves stored image paths for display.
type ImageLocator interface {
	URLPath(imagePath string) string
	Exists(imagePath string) bool
}

// ToReadingItem converts a database.Reading to a ReadingItem.
func ToReadingItem(r database.Reading, images ImageLocator) ReadingItem {
	_, numeric := r.TemperatureValue()
	item := ReadingItem{
		ID:          r.ID,
		Timestamp:   r.Timestamp.Time,
		Temperature: r.Temperature,
		Numeric:     numeric,
	}
	if images != nil && r.ImagePath != "" {
		item.ImageURL = images.URLPath(r.ImagePath)
		item.HasImage = item.ImageURL != "" && images.Exists(r.ImagePath)
	}
	return item
}

// ToReadingItems converts a slice of database.Reading to ReadingItems.
func ToReadingItems(readings []database.Reading, images ImageLocator) []ReadingItem {
	return lo.Map(readings, func(r database.Reading, _ int) ReadingItem {
		return ToReadingItem(r, images)
	})
}

// ToAccountItem converts a database.Account to an AccountItem.
func ToAccountItem(a database.Account) AccountItem {
	return AccountItem{
		Username:  a.Username,
		Role:      string(a.Role),
		IsAdmin:   a.IsAdmin(),
		CreatedAt: a.CreatedAt,
	}
}

// ToAccountItems converts a slice of database.Account to AccountItems.
func ToAccountItems(accounts []database.Account) []AccountItem {
	return lo.Map(accounts, func(a database.Account, _ int) AccountItem {
		return ToAccountItem(a)
	})
}

// ToContentUsage converts storage usage for display.
func ToContentUsage(u *storage.Usage) *ContentUsage {
	if u == nil {
		return nil
	}
	return &ContentUsage{
		Files:       u.Files,
		Bytes:       u.Bytes,
		DiskFree:    u.DiskFree,
		UsedPercent: u.UsedPercent,
	}
}
