// Package filestore keeps uploaded binaries under a single uploads root.
// Paths handed out by the store have the form
// /uploads/<category>/<unix-millis>-<random>.<ext> and are stored verbatim
// in the rows that reference them.
package filestore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// URLPrefix is the prefix of every stored path
const URLPrefix = "/uploads"

// Category is the subdirectory a file is filed under
type Category string

const (
	CategoryProfileImages      Category = "profile_images"
	CategoryPortfolioImages    Category = "portfolio_images"
	CategoryPortfolioVideos    Category = "portfolio_videos"
	CategoryPortfolioDocuments Category = "portfolio_documents"
)

// Categories lists every known category
var Categories = []Category{
	CategoryProfileImages,
	CategoryPortfolioImages,
	CategoryPortfolioVideos,
	CategoryPortfolioDocuments,
}

// ErrInvalidPath is returned for paths outside the uploads root
var ErrInvalidPath = errors.New("path is outside the uploads root")

// Store reads and writes files addressed by stored upload paths
type Store struct {
	fs     afero.Fs
	now    func() time.Time
	suffix func() (int64, error)
}

// New creates a store on top of fs, which is treated as the uploads root
func New(fs afero.Fs) *Store {
	return &Store{
		fs:     fs,
		now:    time.Now,
		suffix: randomSuffix,
	}
}

// NewOS creates a store rooted at dir on the local disk, creating the
// directory and one subdirectory per category
func NewOS(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("uploads directory cannot be empty")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory %s: %w", dir, err)
	}
	s := New(afero.NewBasePathFs(osFs, dir))
	for _, c := range Categories {
		if err := s.fs.MkdirAll(string(c), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create category directory %s: %w", c, err)
		}
	}
	return s, nil
}

// Fs returns the underlying filesystem rooted at the uploads directory
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// NewPath generates a fresh stored path. It does not touch the filesystem.
func (s *Store) NewPath(category Category, ext string) (string, error) {
	if category == "" {
		return "", fmt.Errorf("category cannot be empty")
	}
	n, err := s.suffix()
	if err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("%d-%d.%s", s.now().UnixMilli(), n, ext)
	return path.Join(URLPrefix, string(category), name), nil
}

// Exists reports whether a file exists at the stored path
func (s *Store) Exists(stored string) (bool, error) {
	rel, err := resolve(stored)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, rel)
}

// Write materializes data at the stored path. The bytes are written to a
// temporary sibling first and renamed into place.
func (s *Store) Write(stored string, data []byte) error {
	rel, err := resolve(stored)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(rel), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", stored, err)
	}

	tmp := rel + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", stored, err)
	}
	if err := s.fs.Rename(tmp, rel); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", stored, err)
	}
	return nil
}

// Read returns the content stored at the path
func (s *Store) Read(stored string) ([]byte, error) {
	rel, err := resolve(stored)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, rel)
}

// Open opens the file at the stored path for reading
func (s *Store) Open(stored string) (afero.File, error) {
	rel, err := resolve(stored)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(rel)
}

// Remove deletes the file at the stored path. A missing file is not an error.
func (s *Store) Remove(stored string) error {
	rel, err := resolve(stored)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(rel); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", stored, err)
	}
	return nil
}

// resolve maps a stored path to a path relative to the uploads root
func resolve(stored string) (string, error) {
	if !strings.HasPrefix(stored, URLPrefix+"/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, stored)
	}
	rel := strings.TrimPrefix(stored, URLPrefix+"/")
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, stored)
		}
	}
	rel = path.Clean(rel)
	if rel == "." || rel == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, stored)
	}
	return rel, nil
}

func randomSuffix() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1e9))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
