package facts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory fact store. It is the test fixture backend and
// the backend for diskless deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	state map[string]Value
}

// NewMemoryStore creates an empty in-memory fact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]Value)}
}

// Get returns the committed value for (schema, key).
func (s *MemoryStore) Get(ctx context.Context, schema string, key Key) (Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.state[encodeKey(schema, key)]
	if !ok {
		return nil, false, nil
	}
	return value.clone(), true, nil
}

// ApplyBatch atomically applies a transaction's mutations.
func (s *MemoryStore) ApplyBatch(ctx context.Context, muts []Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mut := range muts {
		enc := encodeKey(mut.Schema, mut.Key)
		switch mut.Op {
		case OpPut:
			s.state[enc] = mut.Value.clone()
		case OpDelete:
			delete(s.state, enc)
		}
	}
	return nil
}

// Clear removes all committed facts.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = make(map[string]Value)
	return nil
}

// Len returns the number of committed facts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state)
}

// Close releases nothing for the memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
