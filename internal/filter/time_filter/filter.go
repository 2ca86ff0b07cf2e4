package timefilter

import (
	"errors"
	"fmt"
	"time"

	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/filter"
	"gorm.io/gorm"
)

const clockLayout = "15:04:05"

// Filter keeps readings whose time of day lies within [start, end].
// Either bound may be empty. The date part of the timestamp is ignored.
type Filter struct {
	start string
	end   string
}

var (
	_ filter.Filterer = (*Filter)(nil)
	_ filter.Scoper   = (*Filter)(nil)
)

// Parse creates a Filter from HH:MM or HH:MM:SS bounds. An empty string
// leaves that side open. A start without seconds begins at second 00, an end
// without seconds includes the whole minute.
func Parse(start, end string) (*Filter, error) {
	if start == "" && end == "" {
		return nil, errors.New("no time bounds given")
	}
	f := &Filter{}
	if start != "" {
		s, err := parseClock(start, "00")
		if err != nil {
			return nil, err
		}
		f.start = s
	}
	if end != "" {
		e, err := parseClock(end, "59")
		if err != nil {
			return nil, err
		}
		f.end = e
	}
	return f, nil
}

func parseClock(s, seconds string) (string, error) {
	if t, err := time.Parse("15:04", s); err == nil {
		return t.Format("15:04") + ":" + seconds, nil
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Format(clockLayout), nil
}

// String returns the name of the filter.
func (f *Filter) String() string {
	start, end := f.start, f.end
	if start == "" {
		start = "*"
	}
	if end == "" {
		end = "*"
	}
	return "Time Filter (" + start + " - " + end + ")"
}

func (f *Filter) Scope(db *gorm.DB) *gorm.DB {
	if f.start != "" {
		db = db.Where("time(timestamp) >= ?", f.start)
	}
	if f.end != "" {
		db = db.Where("time(timestamp) <= ?", f.end)
	}
	return db
}

// Match compares zero padded HH:MM:SS strings, which order like the times.
func (f *Filter) Match(r *database.Reading) bool {
	clock := r.Timestamp.Format(clockLayout)
	if f.start != "" && clock < f.start {
		return false
	}
	if f.end != "" && clock > f.end {
		return false
	}
	return true
}
