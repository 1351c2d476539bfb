package export

import (
	"sync"

	"github.com/google/uuid"
)

// Handle refers to bytes registered in a BlobStore ("blob:<uuid>").
type Handle string

// BlobStore hands out revocable handles to encoded images, the way a
// browser hands out object URLs. Every Put must be matched by a Revoke.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[Handle][]byte
}

// NewBlobStore returns an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[Handle][]byte)}
}

// Put registers data and returns its handle. data is not copied.
func (s *BlobStore) Put(data []byte) Handle {
	h := Handle("blob:" + uuid.NewString())
	s.mu.Lock()
	s.blobs[h] = data
	s.mu.Unlock()
	return h
}

// Open returns the bytes behind h, if still registered. The slice is
// shared with the store and must not be modified.
func (s *BlobStore) Open(h Handle) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[h]
	return data, ok
}

// Revoke releases h. Unknown handles are ignored.
func (s *BlobStore) Revoke(h Handle) {
	s.mu.Lock()
	delete(s.blobs, h)
	s.mu.Unlock()
}

// Len returns the number of live handles.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
