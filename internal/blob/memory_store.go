// internal/blob/memory_store.go
package blob

import (
	"context"
	"sync"

	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
)

type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = append([]byte(nil), payload...)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, appErrors.ErrBlobNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) GetRange(ctx context.Context, id string, offset, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	if !ok || offset >= int64(len(b)) || length <= 0 {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(b)) {
		end = int64(len(b))
	}
	return append([]byte(nil), b[offset:end]...), nil
}

func (s *MemoryStore) Len(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	if !ok {
		return 0, appErrors.ErrBlobNotFound
	}
	return int64(len(b)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

// Exists reports whether a payload is still stored. Test helper.
func (s *MemoryStore) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[id]
	return ok
}

var _ Store = (*MemoryStore)(nil)
