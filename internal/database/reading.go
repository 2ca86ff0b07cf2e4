package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// ErrReadingNotFound is returned when no reading has the requested id.
var ErrReadingNotFound = errors.New("reading not found")

// Reading is a single temperature reading uploaded by the sensor device.
// Temperature is kept exactly as received; it is only interpreted as a
// number when filtering or exporting.
type Reading struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Temperature string    `gorm:"type:text;not null"`
	Timestamp   Timestamp `gorm:"type:text;not null;index"`
	ImagePath   string    `gorm:"type:text"`
}

// TableName keeps the table name used by the original sensor deployment.
func (Reading) TableName() string {
	return "cow_data"
}

// TemperatureValue parses the stored temperature.
// The second return value is false if the value is not a number.
func (r *Reading) TemperatureValue() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Temperature), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Client) CreateReading(ctx context.Context, temperature, imagePath string) (*Reading, error) {
	reading := Reading{
		Temperature: temperature,
		Timestamp:   NewTimestamp(c.now()),
		ImagePath:   imagePath,
	}
	if err := c.db.WithContext(ctx).Create(&reading).Error; err != nil {
		log.Error("failed to create reading", "error", err)
		return nil, fmt.Errorf("failed to create reading: %w", err)
	}
	return &reading, nil
}

func (c *Client) GetReading(ctx context.Context, id uint) (*Reading, error) {
	var reading Reading
	if err := c.db.WithContext(ctx).First(&reading, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReadingNotFound
		}
		log.Error("failed to get reading", "id", id, "error", err)
		return nil, err
	}
	return &reading, nil
}

// GetReadings returns all readings matching query, newest first.
// A nil query returns every reading.
func (c *Client) GetReadings(ctx context.Context, query ReadingQuery) ([]Reading, error) {
	tx := c.db.WithContext(ctx).Model(&Reading{})
	if query != nil {
		tx = tx.Scopes(query.Scopes()...)
	}

	readings := make([]Reading, 0)
	if err := tx.Order("id DESC").Find(&readings).Error; err != nil {
		log.Error("failed to get readings", "error", err)
		return nil, err
	}

	if query == nil {
		return readings, nil
	}
	return lo.Filter(readings, func(r Reading, _ int) bool { return query.Match(&r) }), nil
}

// DeleteReading removes the reading row and returns it, so the caller can
// clean up the referenced image.
func (c *Client) DeleteReading(ctx context.Context, id uint) (*Reading, error) {
	var reading Reading
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&reading, id).Error; err != nil {
			return err
		}
		return tx.Delete(&reading).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReadingNotFound
		}
		log.Error("failed to delete reading", "id", id, "error", err)
		return nil, err
	}
	return &reading, nil
}
