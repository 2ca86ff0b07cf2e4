package filter

import (
	"testing"

	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type idFilter struct {
	maxID uint
}

func (f idFilter) String() string                { return "id filter" }
func (f idFilter) Match(r *database.Reading) bool { return r.ID <= f.maxID }

type scopedFilter struct {
	idFilter
}

func (f scopedFilter) Scope(db *gorm.DB) *gorm.DB { return db }

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name    string
		filters []Filterer
		id      uint
		want    bool
	}{
		{name: "no filters keeps everything", id: 10, want: true},
		{name: "single filter match", filters: []Filterer{idFilter{maxID: 5}}, id: 3, want: true},
		{name: "single filter miss", filters: []Filterer{idFilter{maxID: 5}}, id: 6, want: false},
		{
			name:    "all filters must match",
			filters: []Filterer{idFilter{maxID: 5}, idFilter{maxID: 2}},
			id:      3,
			want:    false,
		},
		{name: "nil filters are skipped", filters: []Filterer{nil, idFilter{maxID: 5}}, id: 4, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.filters...)
			assert.Equal(t, tt.want, f.Match(&database.Reading{ID: tt.id}))
		})
	}
}

func TestFilter_Scopes(t *testing.T) {
	f := New(idFilter{maxID: 1}, scopedFilter{idFilter{maxID: 2}}, scopedFilter{idFilter{maxID: 3}})
	assert.Equal(t, 3, f.Len())
	assert.Len(t, f.Scopes(), 2)
}

func TestFilter_String(t *testing.T) {
	assert.Equal(t, "no filters", New().String())
	assert.Equal(t, "id filter AND id filter", New(idFilter{}, idFilter{}).String())
}
