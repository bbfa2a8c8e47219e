package governance

import (
	"context"
	"maps"
	"slices"
	"sync"

	"consentire/internal/sentinel"
	"consentire/pkg/domain"
)

// Store persists proposals and votes.
type Store interface {
	InsertProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, id string) (*Proposal, error)
	UpdateProposalStatus(ctx context.Context, id string, status ProposalStatus) error
	ListProposals(ctx context.Context, status *ProposalStatus) ([]*Proposal, error)
	// UpsertVote records a ballot, replacing any previous ballot by the same
	// voter on the same proposal.
	UpsertVote(ctx context.Context, v *Vote) error
	ListVotes(ctx context.Context, proposalID string) ([]*Vote, error)
}

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
	order     []string
	votes     map[string]map[domain.UserID]*Vote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[string]*Proposal),
		votes:     make(map[string]map[domain.UserID]*Vote),
	}
}

func (s *MemoryStore) InsertProposal(_ context.Context, p *Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proposals[p.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *p
	s.proposals[p.ID] = &cp
	s.order = append(s.order, p.ID)
	return nil
}

func (s *MemoryStore) GetProposal(_ context.Context, id string) (*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdateProposalStatus(_ context.Context, id string, status ProposalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.Status = status
	return nil
}

func (s *MemoryStore) ListProposals(_ context.Context, status *ProposalStatus) ([]*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Proposal, 0, len(s.order))
	for _, id := range s.order {
		p := s.proposals[id]
		if status != nil && p.Status != *status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) UpsertVote(_ context.Context, v *Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proposals[v.ProposalID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.votes[v.ProposalID] == nil {
		s.votes[v.ProposalID] = make(map[domain.UserID]*Vote)
	}
	cp := *v
	s.votes[v.ProposalID][v.VoterID] = &cp
	return nil
}

func (s *MemoryStore) ListVotes(_ context.Context, proposalID string) ([]*Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ballots := s.votes[proposalID]
	voters := slices.Sorted(maps.Keys(ballots))
	out := make([]*Vote, 0, len(voters))
	for _, voter := range voters {
		cp := *ballots[voter]
		out = append(out, &cp)
	}
	return out, nil
}
