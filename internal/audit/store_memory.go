package audit

import (
	"context"
	"sync"

	"consentire/pkg/domain"
)

// InMemoryStore keeps audit entries in memory for tests and single-process runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByConsent(_ context.Context, consentID domain.ConsentID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Entry
	for _, e := range s.entries {
		if e.ConsentID == consentID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actor string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Entry
	for _, e := range s.entries {
		if e.Actor == actor {
			result = append(result, e)
		}
	}
	return result, nil
}

// All returns a snapshot of every entry, oldest first. Test helper.
func (s *InMemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...)
}
