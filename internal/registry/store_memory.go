package registry

import (
	"context"
	"maps"
	"sync"

	"consentire/internal/sentinel"
	"consentire/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	byOrg map[domain.OrgID]*ControllerRecord
	byRef map[domain.ControllerRef]*ControllerRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byOrg: make(map[domain.OrgID]*ControllerRecord),
		byRef: make(map[domain.ControllerRef]*ControllerRecord),
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec *ControllerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byOrg[rec.OrgID]; ok {
		return sentinel.ErrConflict
	}
	cp := copyRecord(rec)
	s.byOrg[rec.OrgID] = cp
	s.byRef[rec.Ref] = cp
	return nil
}

func (s *MemoryStore) GetByOrgID(_ context.Context, orgID domain.OrgID) (*ControllerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byOrg[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) GetByRef(_ context.Context, ref domain.ControllerRef) (*ControllerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byRef[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) UpdateMetadata(_ context.Context, ref domain.ControllerRef, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byRef[ref]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Metadata = maps.Clone(metadata)
	return nil
}

func copyRecord(rec *ControllerRecord) *ControllerRecord {
	cp := *rec
	cp.Metadata = maps.Clone(rec.Metadata)
	cp.APISecretHash = append([]byte(nil), rec.APISecretHash...)
	return &cp
}
