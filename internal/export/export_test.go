package export

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/herdwatch/herdwatch/internal/cache"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeImage(t *testing.T, s *storage.Store, name string) {
	t.Helper()
	img := imaging.New(300, 200, color.NRGBA{R: 120, G: 80, B: 40, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(s.Dir(), name)))
}

func reading(id uint, temperature, imagePath string) database.Reading {
	return database.Reading{
		ID:          id,
		Temperature: temperature,
		Timestamp:   database.NewTimestamp(time.Date(2025, 3, 14, 8, 0, int(id), 0, time.Local)),
		ImagePath:   imagePath,
	}
}

func readBack(t *testing.T, readings []database.Reading, b *Builder) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, b.Write(context.Background(), &buf, readings))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestBuilder_Write_RowCount(t *testing.T) {
	b := New(newStore(t), 64)

	for _, n := range []int{1, 3, 10} {
		readings := make([]database.Reading, 0, n)
		for i := range n {
			readings = append(readings, reading(uint(i+1), "37.0", ""))
		}

		f := readBack(t, readings, b)
		rows, err := f.GetRows(SheetName)
		require.NoError(t, err)
		assert.Len(t, rows, n+1)
		assert.Equal(t, []string{"Time", "Temperature", "Image"}, rows[0])
	}
}

func TestBuilder_Write_Cells(t *testing.T) {
	s := newStore(t)
	writeImage(t, s, "cow.png")
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.jpg"), []byte("not an image"), 0o644))

	readings := []database.Reading{
		reading(4, "38.2", "static/images/cow.png"),
		reading(3, "warm", "missing.jpg"),
		reading(2, "36.5", "broken.jpg"),
		reading(1, "36.9", ""),
	}
	f := readBack(t, readings, New(s, 64))

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "2025-03-14 08:00:04", rows[1][0])
	assert.Equal(t, "38.2", rows[1][1])
	assert.Equal(t, "warm", rows[2][1])

	pics, err := f.GetPictures(SheetName, "C2")
	require.NoError(t, err)
	require.Len(t, pics, 1)
	img, err := imaging.Decode(bytes.NewReader(pics[0].File))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 64)
	assert.LessOrEqual(t, img.Bounds().Dy(), 64)

	for _, cell := range []string{"C3", "C4", "C5"} {
		pics, err := f.GetPictures(SheetName, cell)
		require.NoError(t, err)
		assert.Empty(t, pics, cell)
	}
}

func TestBuilder_Write_Empty(t *testing.T) {
	b := New(newStore(t), 64)

	var buf bytes.Buffer
	err := b.Write(context.Background(), &buf, nil)
	assert.ErrorIs(t, err, ErrNoReadings)

	err = b.Write(context.Background(), &buf, []database.Reading{})
	assert.ErrorIs(t, err, ErrNoReadings)
	assert.Zero(t, buf.Len())
}

func TestBuilder_Write_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := New(nil, 0).Write(ctx, &buf, []database.Reading{reading(1, "37", "")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func thumbnailBounds(t *testing.T, f *excelize.File, cell string) (int, int, bool) {
	t.Helper()
	pics, err := f.GetPictures(SheetName, cell)
	require.NoError(t, err)
	if len(pics) == 0 {
		return 0, 0, false
	}
	img, err := imaging.Decode(bytes.NewReader(pics[0].File))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy(), true
}

func TestBuilder_ThumbnailCache(t *testing.T) {
	s := newStore(t)
	writeImage(t, s, "cow.png")
	thumbs := cache.NewMemory[[]byte](cache.ThumbnailCachePrefix, time.Minute)
	b := New(s, 64, WithThumbnailCache(thumbs))
	readings := []database.Reading{reading(1, "38.2", "cow.png")}

	w, h, ok := thumbnailBounds(t, readBack(t, readings, b), "C2")
	require.True(t, ok)
	assert.Equal(t, 64, w)
	assert.Equal(t, 43, h)

	w, h, ok = thumbnailBounds(t, readBack(t, readings, b), "C2")
	require.True(t, ok)
	assert.Equal(t, 64, w)
	assert.Equal(t, 43, h)

	// a replaced file gets a new thumbnail
	img := imaging.New(50, 100, color.NRGBA{G: 200, A: 255})
	path := filepath.Join(s.Dir(), "cow.png")
	require.NoError(t, imaging.Save(img, path))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	w, h, ok = thumbnailBounds(t, readBack(t, readings, b), "C2")
	require.True(t, ok)
	assert.Equal(t, 32, w)
	assert.Equal(t, 64, h)

	// a removed file is not served from the cache
	require.NoError(t, os.Remove(path))
	_, _, ok = thumbnailBounds(t, readBack(t, readings, b), "C2")
	assert.False(t, ok)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "readings_20250314_080005.xlsx", Filename(time.Date(2025, 3, 14, 8, 0, 5, 0, time.Local)))
}
