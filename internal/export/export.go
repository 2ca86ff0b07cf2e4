// Package export renders readings as an xlsx workbook with embedded thumbnails.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/herdwatch/herdwatch/internal/cache"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/xuri/excelize/v2"
)

const (
	// SheetName is the name of the only worksheet.
	SheetName = "Readings"
	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// excel row heights are in points, thumbnails in pixels
	pointsPerPixel = 0.75
	maxRowHeight   = 409
)

// ErrNoReadings is returned when there is nothing to export.
var ErrNoReadings = errors.New("no readings to export")

// Header is the first row of every export.
var Header = []any{"Time", "Temperature", "Image"}

// ImageResolver maps a stored image path to a file on disk.
type ImageResolver interface {
	Path(imagePath string) (string, bool)
}

// Builder creates workbooks from readings.
type Builder struct {
	images    ImageResolver
	thumbSize int
	thumbs    *cache.PrefixedCache[[]byte]
}

// Option configures a Builder.
type Option func(*Builder)

// WithThumbnailCache keeps encoded thumbnails in c between exports.
func WithThumbnailCache(c *cache.PrefixedCache[[]byte]) Option {
	return func(b *Builder) {
		b.thumbs = c
	}
}

// New creates a Builder. Thumbnails are fit into a thumbSize square.
func New(images ImageResolver, thumbSize int, opts ...Option) *Builder {
	if thumbSize <= 0 {
		thumbSize = 120
	}
	b := &Builder{
		images:    images,
		thumbSize: thumbSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Filename returns the attachment name for an export created at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("readings_%s.xlsx", t.Format("20060102_150405"))
}

// Write builds a workbook with a header row and one row per reading and
// writes it to w. Nothing is written when it fails.
func (b *Builder) Write(ctx context.Context, w io.Writer, readings []database.Reading) error {
	f, err := b.workbook(ctx, readings)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (b *Builder) workbook(ctx context.Context, readings []database.Reading) (*excelize.File, error) {
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}

	f := excelize.NewFile()
	if err := b.build(ctx, f, readings); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func (b *Builder) build(ctx context.Context, f *excelize.File, readings []database.Reading) error {
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "A", 20); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "B", "B", 14); err != nil {
		return err
	}
	// column width is in characters, roughly 7px each
	if err := f.SetColWidth(SheetName, "C", "C", float64(b.thumbSize)/7+2); err != nil {
		return err
	}

	pictures := 0
	for i := range readings {
		if err := ctx.Err(); err != nil {
			return err
		}

		r := &readings[i]
		row := i + 2

		var temperature any = r.Temperature
		if v, ok := r.TemperatureValue(); ok {
			temperature = v
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &[]any{r.Timestamp.String(), temperature}); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}

		ok, err := b.addThumbnail(ctx, f, row, r.ImagePath)
		if err != nil {
			return err
		}
		if ok {
			pictures++
		}
	}

	log.Debug("Built export workbook.", "rows", len(readings), "pictures", pictures)
	return nil
}

// addThumbnail embeds the image of a row. Missing or undecodable images are
// skipped; only workbook errors are returned.
func (b *Builder) addThumbnail(ctx context.Context, f *excelize.File, row int, imagePath string) (bool, error) {
	if b.images == nil {
		return false, nil
	}
	path, ok := b.images.Path(imagePath)
	if !ok {
		return false, nil
	}

	thumb, err := b.cachedThumbnail(ctx, path)
	if err != nil {
		log.Debug("Skipping image in export.", "path", path, "error", err)
		return false, nil
	}

	cell, err := excelize.CoordinatesToCellName(3, row)
	if err != nil {
		return false, err
	}
	if err := f.AddPictureFromBytes(SheetName, cell, &excelize.Picture{
		Extension: ".png",
		File:      thumb,
		Format: &excelize.GraphicOptions{
			AltText:         imagePath,
			LockAspectRatio: true,
			OffsetX:         2,
			OffsetY:         2,
		},
	}); err != nil {
		return false, fmt.Errorf("failed to embed image for row %d: %w", row, err)
	}

	height := min(float64(b.thumbSize+4)*pointsPerPixel, maxRowHeight)
	if err := f.SetRowHeight(SheetName, row, height); err != nil {
		return false, err
	}
	return true, nil
}

// cachedThumbnail keys thumbnails by path, size and modification time, so a
// replaced or removed file is never served from the cache.
func (b *Builder) cachedThumbnail(ctx context.Context, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if b.thumbs == nil {
		return b.thumbnail(path)
	}

	key := fmt.Sprintf("%s:%d:%d:%d", path, info.Size(), info.ModTime().UnixNano(), b.thumbSize)
	if thumb, err := b.thumbs.Get(ctx, key); err == nil {
		return thumb, nil
	}

	thumb, err := b.thumbnail(path)
	if err != nil {
		return nil, err
	}
	if err := b.thumbs.Set(ctx, key, thumb); err != nil {
		log.Warn("Failed to cache thumbnail.", "path", path, "error", err)
	}
	return thumb, nil
}

func (b *Builder) thumbnail(path string) ([]byte, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Dx() > b.thumbSize || bounds.Dy() > b.thumbSize {
		img = imaging.Fit(img, b.thumbSize, b.thumbSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
