package user

import (
	"context"
	"sync"

	"consentire/internal/sentinel"
	"consentire/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]*Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[domain.UserID]*Profile)}
}

func (s *MemoryStore) Insert(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *profile
	s.profiles[profile.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, userID domain.UserID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *profile
	return &cp, nil
}
