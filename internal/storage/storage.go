// Package storage manages the content directory that holds uploaded images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/herdwatch/herdwatch/internal/cache"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackName is used when nothing of the client filename survives sanitising.
const fallbackName = "upload"

// Store saves and removes files in a single flat directory.
type Store struct {
	dir   string
	usage *cache.PrefixedCache[Usage]
}

// Option configures a Store.
type Option func(*Store)

// WithUsageCache keeps the result of Usage in c until it expires or a file
// is saved or removed.
func WithUsageCache(c *cache.PrefixedCache[Usage]) Option {
	return func(s *Store) {
		s.usage = c
	}
}

// New creates a Store rooted at dir. The directory is created when absent.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the content directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes src under a sanitised, uniquely suffixed version of filename
// and returns the stored name, relative to the content directory.
func (s *Store) Save(filename string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create content directory: %w", err)
	}

	name := UniqueName(SanitizeFilename(filename))
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	s.invalidateUsage()
	return name, nil
}

// Path resolves a stored image path to a file inside the content directory.
// Only the last path element is used, so legacy paths such as
// "static/images/cow.jpg" resolve to the same file and ".." cannot escape.
func (s *Store) Path(imagePath string) (string, bool) {
	base := filepath.Base(filepath.FromSlash(imagePath))
	if imagePath == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", false
	}
	return filepath.Join(s.dir, base), true
}

// URLPath returns the path under which the image is served, or "" when
// imagePath cannot refer to a file.
func (s *Store) URLPath(imagePath string) string {
	p, ok := s.Path(imagePath)
	if !ok {
		return ""
	}
	return "/images/" + filepath.Base(p)
}

// Exists reports whether the image file is present.
func (s *Store) Exists(imagePath string) bool {
	p, ok := s.Path(imagePath)
	if !ok {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes the image file. Failures are logged and never returned.
func (s *Store) Remove(imagePath string) {
	p, ok := s.Path(imagePath)
	if !ok {
		return
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("Image already gone.", "path", p)
			return
		}
		log.Warn("Failed to remove image.", "path", p, "error", err)
		return
	}
	s.invalidateUsage()
	log.Debug("Removed image.", "path", p)
}

// Usage describes how much space the content directory takes.
type Usage struct {
	Files       int
	Bytes       uint64
	DiskTotal   uint64
	DiskFree    uint64
	UsedPercent float64
}

// Usage reports the state of the content directory and its filesystem.
func (s *Store) Usage(ctx context.Context) (*Usage, error) {
	if s.usage == nil {
		return s.walkUsage(ctx)
	}
	if u, err := s.usage.Get(ctx, s.dir); err == nil {
		return &u, nil
	}

	u, err := s.walkUsage(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.usage.Set(ctx, s.dir, *u); err != nil {
		log.Warn("Failed to cache content usage.", "error", err)
	}
	return u, nil
}

func (s *Store) invalidateUsage() {
	if s.usage == nil {
		return
	}
	if err := s.usage.Delete(context.Background(), s.dir); err != nil {
		log.Debug("Failed to invalidate content usage.", "error", err)
	}
}

func (s *Store) walkUsage(ctx context.Context) (*Usage, error) {
	u := &Usage{}
	err := filepath.WalkDir(s.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size, err := safecast.ToUint64(info.Size())
		if err != nil {
			return err
		}
		u.Files++
		u.Bytes += size
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk content directory: %w", err)
	}

	du, err := disk.UsageWithContext(ctx, s.dir)
	if err != nil {
		log.Error("failed to get disk usage", "path", s.dir, "error", err)
		return u, nil
	}
	u.DiskTotal = du.Total
	u.DiskFree = du.Free
	u.UsedPercent = du.UsedPercent
	return u, nil
}

// UniqueName inserts a short random id before the extension.
func UniqueName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return stem + "_" + uuid.New().String()[:8] + ext
}

// SanitizeFilename reduces a client supplied filename to a safe ASCII name
// without directory components.
func SanitizeFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	folded = strings.NewReplacer("/", " ", "\\", " ").Replace(folded)
	folded = strings.Join(strings.Fields(folded), "_")

	var b strings.Builder
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-') {
			b.WriteRune(r)
		}
	}

	clean := strings.Trim(b.String(), "._")
	if clean == "" {
		return fallbackName
	}
	return clean
}
