package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimestampLayout is the on-disk format of reading timestamps.
// It carries no zone: values are server local time, second precision.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp is a local wall-clock time stored as TimestampLayout text, so
// sqlite's date() and time() functions see the local date and time of day.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to seconds and converts it to local time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Local().Truncate(time.Second)}
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	return t.Format(TimestampLayout), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case time.Time:
		// the driver may already have parsed the text; keep the wall clock
		t.Time = time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), 0, time.Local)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", value)
	}
}

func (t *Timestamp) parse(s string) error {
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// String returns the timestamp in TimestampLayout.
func (t Timestamp) String() string {
	return t.Format(TimestampLayout)
}
