package genstore

import (
	"context"
	"sync"
)

// LocalGenStore keeps generations in-process (default). A client owns a
// single session slot, so the map stays tiny; no pruning loop is needed.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]uint64
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore() *LocalGenStore {
	return &LocalGenStore{gens: make(map[string]uint64)}
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[k] // zero value (0) if missing
	s.mu.RUnlock()
	return g, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	s.gens[k]++
	g := s.gens[k]
	s.mu.Unlock()
	return g, nil
}

func (s *LocalGenStore) Close(_ context.Context) error { return nil }
