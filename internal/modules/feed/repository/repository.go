package repository

import (
	"context"
	"path/filepath"
	"time"

	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	"github.com/samber/oops"
)

// Artifact is one persisted, serialized feed
type Artifact struct {
	Key     string
	Data    []byte
	ModTime time.Time
}

// Repository stores serialized feeds under well-known keys. Get returns
// errors.ErrCacheNotFound when nothing was stored under the key. Put replaces
// the whole artifact; readers never observe a partial write.
type Repository interface {
	Get(ctx context.Context, key string) (*Artifact, error)
	Put(ctx context.Context, key string, data []byte) (*Artifact, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the repository selected by backend. cachePath is the directory
// for file storage (and the database location for sqlite when dsn is empty).
func Open(backend domain.StorageBackend, cachePath, dsn string) (Repository, error) {
	switch backend {
	case domain.StorageBackendFile:
		return NewFileStorage(cachePath)
	case domain.StorageBackendMemory:
		return NewMemoryStorage(), nil
	case domain.StorageBackendSqlite:
		if dsn == "" {
			dsn = filepath.Join(cachePath, "feed-cache.db")
		}
		return NewSQLiteStorage(dsn)
	case domain.StorageBackendPostgres:
		return NewPostgresStorage(dsn)
	default:
		return nil, oops.With("storage_backend", backend).Errorf("unknown storage backend")
	}
}
