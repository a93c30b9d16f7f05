// Package memory provides the default in-process Store. It is the moral
// equivalent of a browser tab's storage: private to the process, gone when
// the process exits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/sessync/store"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Memory struct {
	mu  sync.RWMutex
	m   map[string]entry
	now func() time.Time
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

// NewWithClock is for tests that need a controlled clock.
func NewWithClock(now func() time.Time) *Memory {
	return &Memory{m: make(map[string]entry), now: now}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && s.now().After(e.exp) {
		s.mu.Lock()
		// re-check under the write lock; a fresh Set may have replaced it
		if cur, ok := s.m[key]; ok && !cur.exp.IsZero() && s.now().After(cur.exp) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = entry{v: value, exp: exp}
	s.mu.Unlock()
	return true, nil
}

func (s *Memory) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close(_ context.Context) error {
	s.mu.Lock()
	s.m = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live keys (expired-but-unread entries count).
// Exposed for tests.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
