package filter

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Filterer defines the interface for reading filters.
type Filterer interface {
	fmt.Stringer
	// Match reports whether the reading satisfies the filter.
	Match(*database.Reading) bool
}

// Scoper is implemented by filters that can be expressed in SQL.
// Match is still evaluated for every row returned by the scoped query.
type Scoper interface {
	Scope(*gorm.DB) *gorm.DB
}

// Filter combines filters with logical AND.
type Filter struct {
	filters []Filterer
}

var _ database.ReadingQuery = (*Filter)(nil)

// New creates a new Filter instance with the given filters.
// Nil filters are skipped.
func New(filters ...Filterer) *Filter {
	return &Filter{
		filters: lo.Filter(filters, func(f Filterer, _ int) bool { return f != nil }),
	}
}

// Len returns the number of active filters.
func (f *Filter) Len() int {
	return len(f.filters)
}

// Scopes returns the SQL scopes of all filters that support them.
func (f *Filter) Scopes() []func(*gorm.DB) *gorm.DB {
	scopes := make([]func(*gorm.DB) *gorm.DB, 0, len(f.filters))
	for _, filter := range f.filters {
		if s, ok := filter.(Scoper); ok {
			scopes = append(scopes, s.Scope)
		}
	}
	return scopes
}

// Match reports whether r satisfies every filter.
func (f *Filter) Match(r *database.Reading) bool {
	for _, filter := range f.filters {
		if !filter.Match(r) {
			log.Debug("Reading filtered out.", "filter", filter.String(), "id", r.ID)
			return false
		}
	}
	return true
}

func (f *Filter) String() string {
	if len(f.filters) == 0 {
		return "no filters"
	}
	return strings.Join(lo.Map(f.filters, func(f Filterer, _ int) string { return f.String() }), " AND ")
}
