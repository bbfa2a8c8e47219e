// Package governance implements community proposals with token-weighted
// voting. It steers policy around the consent platform (purpose taxonomies,
// retention defaults); it has no authority over individual consent records.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"consentire/internal/sentinel"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/domain"
)

// Service manages proposals and ballots.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose opens a new proposal with the given voting period.
func (s *Service) Propose(ctx context.Context, proposer domain.UserID, title, description string, votingPeriod time.Duration) (*Proposal, error) {
	if proposer.IsNil() {
		return nil, domainerrors.New(domainerrors.CodeValidation, "proposer id is required")
	}
	if title == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "title is required")
	}
	if votingPeriod <= 0 {
		return nil, domainerrors.New(domainerrors.CodeValidation, "voting period must be positive")
	}

	now := s.now().UTC()
	p := &Proposal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		ProposerID:  proposer,
		Status:      ProposalOpen,
		CreatedAt:   now,
		ClosesAt:    now.Add(votingPeriod),
	}
	if err := s.store.InsertProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("insert proposal: %w", err)
	}

	s.logger.InfoContext(ctx, "proposal opened",
		slog.String("proposal_id", p.ID),
		slog.Time("closes_at", p.ClosesAt),
	)
	return p, nil
}

// CastVote records a ballot. Weight defaults to 1 when the caller holds no
// tokens; re-voting replaces the previous ballot rather than stacking.
func (s *Service) CastVote(ctx context.Context, proposalID string, voter domain.UserID, support bool, weight int64) (*Vote, error) {
	if voter.IsNil() {
		return nil, domainerrors.New(domainerrors.CodeValidation, "voter id is required")
	}
	if weight < 0 {
		return nil, domainerrors.New(domainerrors.CodeValidation, "weight cannot be negative")
	}
	if weight == 0 {
		weight = 1
	}

	p, err := s.getProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != ProposalOpen || !s.now().Before(p.ClosesAt) {
		return nil, domainerrors.New(domainerrors.CodeInvalidState, "voting is closed")
	}

	v := &Vote{
		ProposalID: proposalID,
		VoterID:    voter,
		Support:    support,
		Weight:     weight,
		CastAt:     s.now().UTC(),
	}
	if err := s.store.UpsertVote(ctx, v); err != nil {
		return nil, fmt.Errorf("record vote: %w", err)
	}
	return v, nil
}

// Tally returns the current weighted count for a proposal.
func (s *Service) Tally(ctx context.Context, proposalID string) (*Tally, error) {
	if _, err := s.getProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	votes, err := s.store.ListVotes(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}

	tally := &Tally{ProposalID: proposalID, Voters: len(votes)}
	for _, v := range votes {
		if v.Support {
			tally.For += v.Weight
		} else {
			tally.Against += v.Weight
		}
	}
	return tally, nil
}

// Finalize closes a proposal whose voting period has ended. A strict weighted
// majority passes; ties reject.
func (s *Service) Finalize(ctx context.Context, proposalID string) (*Proposal, error) {
	p, err := s.getProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != ProposalOpen {
		return p, nil
	}
	if s.now().Before(p.ClosesAt) {
		return nil, domainerrors.New(domainerrors.CodeInvalidState, "voting period is still open")
	}

	tally, err := s.Tally(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	status := ProposalRejected
	if tally.For > tally.Against {
		status = ProposalPassed
	}
	if err := s.store.UpdateProposalStatus(ctx, proposalID, status); err != nil {
		return nil, fmt.Errorf("finalize proposal: %w", err)
	}
	p.Status = status

	s.logger.InfoContext(ctx, "proposal finalized",
		slog.String("proposal_id", proposalID),
		slog.String("status", string(status)),
		slog.Int64("for", tally.For),
		slog.Int64("against", tally.Against),
	)
	return p, nil
}

// ListProposals returns proposals in creation order, optionally filtered.
func (s *Service) ListProposals(ctx context.Context, status *ProposalStatus) ([]*Proposal, error) {
	proposals, err := s.store.ListProposals(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

func (s *Service) getProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	p, err := s.store.GetProposal(ctx, proposalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "proposal not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}
	return p, nil
}
