package datefilter

import (
	"fmt"
	"time"

	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/filter"
	"gorm.io/gorm"
)

// Layout is the expected format of the date parameter.
const Layout = "2006-01-02"

// Filter keeps readings taken on a single calendar day.
type Filter struct {
	day string
}

var (
	_ filter.Filterer = (*Filter)(nil)
	_ filter.Scoper   = (*Filter)(nil)
)

// New creates a date Filter for the given day.
func New(day time.Time) *Filter {
	return &Filter{day: day.Format(Layout)}
}

// Parse creates a date Filter from a YYYY-MM-DD string.
func Parse(s string) (*Filter, error) {
	day, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return New(day), nil
}

// String returns the name of the filter.
func (f *Filter) String() string { return "Date Filter (" + f.day + ")" }

func (f *Filter) Scope(db *gorm.DB) *gorm.DB {
	return db.Where("date(timestamp) = ?", f.day)
}

func (f *Filter) Match(r *database.Reading) bool {
	return r.Timestamp.Format(Layout) == f.day
}
