package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"consentire/internal/consent/models"
	"consentire/internal/sentinel"
	"consentire/pkg/domain"
)

// InMemoryStore holds consent records in process memory. It implements the
// same compare-and-swap contract as the Postgres store so the engine behaves
// identically against either; it is a test double and a single-process
// convenience, never authoritative in a multi-instance deployment.
type InMemoryStore struct {
	mu    sync.RWMutex
	byKey map[models.Key][]*models.Record
	byID  map[domain.ConsentID]*models.Record
}

// New constructs an empty in-memory consent store.
func New() *InMemoryStore {
	return &InMemoryStore{
		byKey: make(map[models.Key][]*models.Record),
		byID:  make(map[domain.ConsentID]*models.Record),
	}
}

func (s *InMemoryStore) GetByKey(_ context.Context, key models.Key) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.byKey[key]
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.GrantedAt.After(latest.GrantedAt) {
			latest = r
		}
	}
	copyRecord := *latest
	return &copyRecord, nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id domain.ConsentID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

func (s *InMemoryStore) InsertIfAbsentGranted(_ context.Context, record *models.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := record.Key()
	for _, existing := range s.byKey[key] {
		if existing.Status == models.StatusGranted {
			return false, nil
		}
	}
	copyRecord := *record
	s.byKey[key] = append(s.byKey[key], &copyRecord)
	s.byID[copyRecord.ID] = &copyRecord
	return true, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, id domain.ConsentID, expected, next models.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if record.Status != expected {
		return false, nil
	}
	record.Status = next
	if next == models.StatusRevoked {
		revokedAt := at
		record.RevokedAt = &revokedAt
	}
	return true, nil
}

func (s *InMemoryStore) AttachLedgerTxHash(_ context.Context, id domain.ConsentID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.LedgerTxHash = txHash
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID domain.UserID, status *models.Status) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Record
	for _, record := range s.byID {
		if record.UserID != userID {
			continue
		}
		if status != nil && record.Status != *status {
			continue
		}
		copyRecord := *record
		result = append(result, &copyRecord)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GrantedAt.After(result[j].GrantedAt)
	})
	return result, nil
}

func (s *InMemoryStore) ListByController(_ context.Context, controllerHash domain.ControllerHash) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Record
	for _, record := range s.byID {
		if record.ControllerHash != controllerHash {
			continue
		}
		copyRecord := *record
		result = append(result, &copyRecord)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GrantedAt.After(result[j].GrantedAt)
	})
	return result, nil
}

func (s *InMemoryStore) ListExpiredGranted(_ context.Context, now time.Time, limit int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Record
	for _, record := range s.byID {
		if record.Status != models.StatusGranted || !record.IsExpired(now) {
			continue
		}
		copyRecord := *record
		result = append(result, &copyRecord)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
