package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/okian/aura/internal/domain/model"
)

const (
	defaultFileMode   os.FileMode = 0o644
	defaultStaleAfter             = 10 * time.Minute
	lockSuffix                    = ".lock"
)

// FileStore keeps the roster as a single JSON file. Saves go through a
// temporary file in the same directory and a rename, so readers see either
// the old or the new document, never a partial one.
type FileStore struct {
	path       string
	lockPath   string
	staleAfter time.Duration
	now        func() time.Time
}

var (
	_ Store  = (*FileStore)(nil)
	_ Locker = (*FileStore)(nil)
)

// NewFileStore creates a store for the document at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:       path,
		lockPath:   path + lockSuffix,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads and decodes the document.
func (s *FileStore) Load(ctx context.Context) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrLoad, s.path, err)
	}
	doc, err := model.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrLoad, s.path, err)
	}
	return doc, nil
}

// Save encodes doc and atomically replaces the document on disk.
func (s *FileStore) Save(ctx context.Context, doc *model.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrPersist)
	}

	data, err := model.Encode(doc)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := s.writeAtomic(data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, s.path, err)
	}
	return nil
}

func (s *FileStore) writeAtomic(data []byte) (err error) {
	mode := defaultFileMode
	if fi, statErr := os.Stat(s.path); statErr == nil {
		mode = fi.Mode().Perm()
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return err
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Lock creates the lock file exclusively. A lock older than the stale
// threshold is broken once.
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.createLock()
	if errors.Is(err, os.ErrExist) && s.breakStale() {
		f, err = s.createLock()
	}
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, s.lockPath)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", s.lockPath, err)
	}

	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + " " + s.now().UTC().Format(time.RFC3339) + "\n")
	_ = f.Close()

	return func() error {
		if err := os.Remove(s.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}

func (s *FileStore) createLock() (*os.File, error) {
	return os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFileMode)
}

func (s *FileStore) breakStale() bool {
	if s.staleAfter <= 0 {
		return false
	}
	fi, err := os.Stat(s.lockPath)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	if s.now().Sub(fi.ModTime()) < s.staleAfter {
		return false
	}
	return os.Remove(s.lockPath) == nil
}
