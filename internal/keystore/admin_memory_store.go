package keystore

import (
	"context"
	"sync"
)

// AdminMemoryStore is an in-memory AdminStore, used in unit tests.
type AdminMemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*AdminAPIKey // by ID
}

func NewAdminMemoryStore() *AdminMemoryStore {
	return &AdminMemoryStore{keys: make(map[string]*AdminAPIKey)}
}

func (s *AdminMemoryStore) Create(ctx context.Context, key *AdminAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

func (s *AdminMemoryStore) GetByHash(ctx context.Context, hash string) (*AdminAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Hash == hash {
			return k, nil
		}
	}
	return nil, ErrAdminKeyNotFound
}

func (s *AdminMemoryStore) GetByID(ctx context.Context, id string) (*AdminAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, ErrAdminKeyNotFound
	}
	return k, nil
}

func (s *AdminMemoryStore) GetByAdminID(ctx context.Context, adminID string) ([]*AdminAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*AdminAPIKey
	for _, k := range s.keys {
		if k.AdminID == adminID {
			result = append(result, k)
		}
	}
	return result, nil
}

func (s *AdminMemoryStore) Update(ctx context.Context, key *AdminAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}
