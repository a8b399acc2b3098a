package registry

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests and ephemeral deployments.
type MemStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func (s *MemStore) Get(handle string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[handle]
	return rec, ok
}

func (s *MemStore) All() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.records))
	for h, rec := range s.records {
		out[h] = rec
	}
	return out
}

func (s *MemStore) Put(handle string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[handle]; ok && !CanTransition(prev.Status, rec.Status) {
		return fmt.Errorf("%w: %s -> %s for handle %s", ErrInvalidTransition, prev.Status, rec.Status, handle)
	}
	s.records[handle] = rec
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return nil
}

// Verify MemStore implements Store
var _ Store = (*MemStore)(nil)
