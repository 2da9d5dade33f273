// Package memory provides a thread-safe in-memory implementation of store.Store.
package memory

import (
	"sync"

	"github.com/calderw/bastion/store"
)

// Store is an in-memory store.Store. Suitable for tests and single-process
// demos; records do not survive a restart.
type Store struct {
	mu   sync.RWMutex
	data map[string]*store.Record
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string]*store.Record)}
}

func (s *Store) Put(userID string, rec *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[userID]; ok {
		return store.ErrAlreadyRegistered
	}
	s.data[userID] = rec.Clone()
	return nil
}

func (s *Store) Get(userID string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) List() (map[string]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*store.Record, len(s.data))
	for userID, rec := range s.data {
		out[userID] = rec.Clone()
	}
	return out, nil
}

func (s *Store) AttachSecondFactor(userID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[userID]
	if !ok {
		return store.ErrNotFound
	}
	rec.TOTPEnabled = true
	rec.TOTPSecret = secret
	return nil
}
