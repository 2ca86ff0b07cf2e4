package params

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/database/mock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	morning   = time.Date(2025, 3, 14, 8, 0, 0, 0, time.Local)
	afternoon = time.Date(2025, 3, 14, 14, 0, 0, 0, time.Local)
)

func clock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		ts := times[i%len(times)]
		i++
		return ts
	}
}

// seededStores returns a sqlite store and an in-memory store holding the
// same two readings: 36.5 at 08:00 and 38.2 at 14:00.
func seededStores(t *testing.T) map[string]database.ReadingDB {
	t.Helper()
	ctx := context.Background()

	client, err := database.New(
		filepath.Join(t.TempDir(), "test.db"),
		database.WithClock(clock(morning, afternoon)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	memory := mock.NewMockDB()
	memory.Now = clock(morning, afternoon)

	stores := map[string]database.ReadingDB{"sqlite": client, "mock": memory}
	for _, store := range stores {
		_, err := store.CreateReading(ctx, "36.5", "images/a.jpg")
		require.NoError(t, err)
		_, err = store.CreateReading(ctx, "38.2", "images/b.jpg")
		require.NoError(t, err)
	}
	return stores
}

func temperatures(readings []database.Reading) []string {
	return lo.Map(readings, func(r database.Reading, _ int) string { return r.Temperature })
}

func TestParams_Filter(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   []string
	}{
		{name: "no filters, newest first", params: Params{}, want: []string{"38.2", "36.5"}},
		{name: "minimum temperature", params: Params{TempMin: "37"}, want: []string{"38.2"}},
		{name: "start time", params: Params{StartTime: "09:00"}, want: []string{"38.2"}},
		{name: "minimum temperature and start time", params: Params{TempMin: "37", StartTime: "09:00"}, want: []string{"38.2"}},
		{name: "nothing hot enough", params: Params{TempMin: "40"}, want: []string{}},
		{name: "matching date", params: Params{Date: "2025-03-14"}, want: []string{"38.2", "36.5"}},
		{name: "other date", params: Params{Date: "2025-03-15"}, want: []string{}},
		{name: "end time", params: Params{EndTime: "08:00"}, want: []string{"36.5"}},
		{name: "time window excludes both", params: Params{StartTime: "09:00", EndTime: "13:59"}, want: []string{}},
		{name: "minimum bound is inclusive", params: Params{TempMin: "38.2"}, want: []string{"38.2"}},
		{name: "unparseable values are ignored", params: Params{Date: "soon", TempMin: "warm", StartTime: "noon"}, want: []string{"38.2", "36.5"}},
		{name: "valid end with invalid start", params: Params{StartTime: "noon", EndTime: "09:00"}, want: []string{"36.5"}},
	}

	stores := seededStores(t)
	for storeName, store := range stores {
		for _, tt := range tests {
			t.Run(storeName+"/"+tt.name, func(t *testing.T) {
				readings, err := store.GetReadings(context.Background(), tt.params.Filter())
				require.NoError(t, err)
				assert.Equal(t, tt.want, temperatures(readings))
			})
		}
	}
}

func TestParams_Filter_CountsOnlyValidParameters(t *testing.T) {
	assert.Equal(t, 0, Params{}.Filter().Len())
	assert.Equal(t, 0, Params{Date: "x", TempMin: "y", StartTime: "z", EndTime: "w"}.Filter().Len())
	assert.Equal(t, 3, Params{Date: "2025-01-01", TempMin: "1", StartTime: "01:00", EndTime: "02:00"}.Filter().Len())
}

func TestParams_Encode(t *testing.T) {
	assert.Empty(t, Params{}.Encode())
	assert.Equal(t, "date=2025-03-14&temp_min=37", Params{Date: "2025-03-14", TempMin: "37"}.Encode())
	assert.Equal(t, "end_time=10%3A00&start_time=09%3A00", Params{StartTime: "09:00", EndTime: "10:00"}.Encode())
}

func TestParams_IsEmpty(t *testing.T) {
	assert.True(t, Params{}.IsEmpty())
	assert.False(t, Params{EndTime: "10:00"}.IsEmpty())
}
