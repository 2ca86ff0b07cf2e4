package temperaturefilter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/filter"
)

// Filter keeps readings with a temperature of at least Min.
// Temperatures are stored as text, so the comparison happens after loading;
// a value that does not parse as a number never matches.
type Filter struct {
	min float64
}

var _ filter.Filterer = (*Filter)(nil)

// New creates a minimum temperature Filter.
func New(threshold float64) *Filter {
	return &Filter{min: threshold}
}

// Parse creates a Filter from a decimal string.
func Parse(s string) (*Filter, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum temperature %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("invalid minimum temperature %q", s)
	}
	return New(v), nil
}

// String returns the name of the filter.
func (f *Filter) String() string {
	return "Temperature Filter (>= " + strconv.FormatFloat(f.min, 'f', -1, 64) + ")"
}

func (f *Filter) Match(r *database.Reading) bool {
	v, ok := r.TemperatureValue()
	return ok && v >= f.min
}
