package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
)

// MemoryStorage keeps artifacts in a map. Contents are lost on restart.
type MemoryStorage struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
	now       func() time.Time
}

// NewMemoryStorage creates an empty in-memory repository
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		artifacts: make(map[string]Artifact),
		now:       time.Now,
	}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.artifacts[key]
	if !ok {
		return nil, errors.ErrCacheNotFound
	}
	artifact.Data = slices.Clone(artifact.Data)
	return &artifact, nil
}

func (s *MemoryStorage) Put(ctx context.Context, key string, data []byte) (*Artifact, error) {
	if key == "" {
		return nil, errors.ErrInvalidCacheKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	artifact := Artifact{
		Key:     key,
		Data:    slices.Clone(data),
		ModTime: s.now().UTC(),
	}
	s.artifacts[key] = artifact
	return &Artifact{Key: key, Data: slices.Clone(data), ModTime: artifact.ModTime}, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, key)
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
