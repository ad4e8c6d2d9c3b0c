package repository

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/oops"
)

// FileStorage implements Repository with one file per key under basePath.
// Writes go to a temp file in the same directory and are renamed into place.
type FileStorage struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewFileStorage creates a file-based feed repository
func NewFileStorage(basePath string) (*FileStorage, error) {
	if basePath == "" {
		return nil, oops.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, oops.With("base_path", basePath, "context", "failed to resolve storage path").Wrap(err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, oops.With("base_path", abs, "context", "failed to create storage directory").Wrap(err)
	}

	return &FileStorage{
		basePath: abs,
		locks:    make(map[string]*keyLock),
	}, nil
}

func (s *FileStorage) Get(ctx context.Context, key string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.ErrCacheNotFound
		}
		return nil, oops.With("key", key, "context", "failed to stat cache file").Wrap(err)
	}
	if info.IsDir() {
		return nil, errors.ErrCacheNotFound
	}

	// rename-on-write means a single ReadFile always sees a complete file
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.ErrCacheNotFound
		}
		return nil, oops.With("key", key, "context", "failed to read cache file").Wrap(err)
	}

	return &Artifact{
		Key:     key,
		Data:    data,
		ModTime: info.ModTime().UTC(),
	}, nil
}

func (s *FileStorage) Put(ctx context.Context, key string, data []byte) (*Artifact, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	unlock := s.lockKey(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.basePath, ".cache-*")
	if err != nil {
		return nil, oops.With("key", key, "context", "failed to create temp file").Wrap(err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0644)
	}
	if err != nil {
		os.Remove(tmpName)
		return nil, oops.With("key", key, "context", "failed to write temp file").Wrap(err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, oops.With("key", key, "path", path, "context", "failed to replace cache file").Wrap(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, oops.With("key", key, "context", "failed to stat cache file").Wrap(err)
	}

	return &Artifact{
		Key:     key,
		Data:    data,
		ModTime: info.ModTime().UTC(),
	}, nil
}

func (s *FileStorage) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	unlock := s.lockKey(key)
	defer unlock()

	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return oops.With("key", key, "context", "failed to remove cache file").Wrap(err)
	}
	return nil
}

func (s *FileStorage) Close() error {
	return nil
}

func (s *FileStorage) lockKey(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &keyLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *FileStorage) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".cache-") {
		return "", oops.With("key", key).Wrap(errors.ErrInvalidCacheKey)
	}
	return filepath.Join(s.basePath, key), nil
}
