package storagesvc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core"
)

// DummyStorage keeps objects in memory. Used in tests and local dev.
type DummyStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ core.DocumentStorage = (*DummyStorage)(nil)

func NewDummyStorage() *DummyStorage {
	return &DummyStorage{objects: make(map[string][]byte)}
}

func (s *DummyStorage) Upload(_ context.Context, key, _ string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", errors.Wrap(err, "reading content")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return key, nil
}

func (s *DummyStorage) SignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", errors.Errorf("object %q not found", key)
	}
	return fmt.Sprintf("https://storage.local/%s?expires=%d", key, int64(expiry/time.Second)), nil
}

func (s *DummyStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

// Object returns a stored object's content for test assertions.
func (s *DummyStorage) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}
