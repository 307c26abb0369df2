package store

import (
	"context"
	"sync"

	"go.pilab.hu/authflow/domain"
)

// MemoryStore implements SessionStore in process memory. It is the
// default for tests and for embedders that manage durability themselves.
type MemoryStore struct {
	mu     sync.RWMutex
	record *domain.SessionRecord
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements SessionStore.Save.
func (s *MemoryStore) Save(_ context.Context, record *domain.SessionRecord) error {
	cp := *record
	if record.User != nil {
		u := *record.User
		cp.User = &u
	}
	s.mu.Lock()
	s.record = &cp
	s.mu.Unlock()
	return nil
}

// Load implements SessionStore.Load.
func (s *MemoryStore) Load(_ context.Context) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return nil, nil
	}
	cp := *s.record
	if s.record.User != nil {
		u := *s.record.User
		cp.User = &u
	}
	return &cp, nil
}

// Clear implements SessionStore.Clear.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.record = nil
	s.mu.Unlock()
	return nil
}
