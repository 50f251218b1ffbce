// Package local implements the on-disk asset cache rooted at a single
// directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const lockFileName = ".lock"

// ErrLocked is returned by Lock when another process holds the cache root.
var ErrLocked = errors.New("cache directory is locked by another process")

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where files will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes files beneath a base directory.
type Store struct {
	baseDir string
}

// New creates a local filesystem store, creating BaseDir when missing.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &Store{baseDir: baseDir}, nil
}

// BaseDir returns the absolute root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Path maps a slash-separated relative path to an absolute location under
// the base directory. Paths that escape the base directory are rejected.
func (s *Store) Path(rel string) (string, error) {
	rel = strings.TrimLeft(rel, "/")
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	inside, err := filepath.Rel(s.baseDir, full)
	if err != nil || inside == "." || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q", rel)
	}
	return full, nil
}

// Exists reports whether a regular file is present at rel.
func (s *Store) Exists(rel string) (bool, error) {
	full, err := s.Path(rel)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", full, err)
	}
	return info.Mode().IsRegular(), nil
}

// MkdirAll creates the directory rel and any missing parents and returns its
// absolute path.
func (s *Store) MkdirAll(rel string) (string, error) {
	full, err := s.Path(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(full, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", full, err)
	}
	return full, nil
}

// Put streams data to rel. The content is written to a temporary sibling and
// renamed into place, so readers never observe a partial file.
func (s *Store) Put(ctx context.Context, rel string, data io.Reader) (string, int64, error) {
	full, err := s.Path(rel)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", 0, fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*.part")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: data})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", n, fmt.Errorf("failed to write %s: %w", full, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		cleanup()
		return "", n, fmt.Errorf("failed to move %s into place: %w", full, err)
	}
	return full, n, nil
}

// Lock takes an exclusive advisory lock on the base directory. The caller
// must Unlock the returned handle when done.
func (s *Store) Lock() (*flock.Flock, error) {
	fl := flock.New(filepath.Join(s.baseDir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.baseDir, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl, nil
}

// contextReader aborts a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
