package graph

import (
	"context"
	"fmt"
	"sync"

	"weftlabs/weft/pkg/command"
)

// MemoryStore is an in-memory graph store for tests and diskless nodes.
// Records are held in an append-only arena indexed by identifier; parent
// relationships are lookup keys, never owning references.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[command.ID]*Record
	children map[command.ID][]command.ID
	order    []command.ID
	heads    []command.ID
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[command.ID]*Record),
		children: make(map[command.ID][]command.ID),
	}
}

// Append stores a record and replaces the head set atomically.
func (s *MemoryStore) Append(ctx context.Context, rec *Record, heads []command.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return &StoreError{Backend: "memory", Op: "append",
			Cause: fmt.Errorf("duplicate id %s", rec.ID)}
	}

	stored := *rec
	s.records[rec.ID] = &stored
	s.children[rec.Parent] = append(s.children[rec.Parent], rec.ID)
	s.order = append(s.order, rec.ID)
	s.heads = append([]command.ID(nil), heads...)
	return nil
}

// Get returns the record for id.
func (s *MemoryStore) Get(ctx context.Context, id command.ID) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	copied := *rec
	return &copied, true, nil
}

// ChildrenOf returns the identifiers of commands whose parent is id.
func (s *MemoryStore) ChildrenOf(ctx context.Context, id command.ID) ([]command.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]command.ID(nil), s.children[id]...), nil
}

// Heads returns the current frontier identifiers.
func (s *MemoryStore) Heads(ctx context.Context) ([]command.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]command.ID(nil), s.heads...), nil
}

// All returns every stored record in append order.
func (s *MemoryStore) All(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		copied := *s.records[id]
		out = append(out, &copied)
	}
	return out, nil
}

// Close releases nothing for the memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
