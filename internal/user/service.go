// Package user registers data subjects. Registration is a pure derivation
// step: the email and public key presented by the user produce a stable
// pseudonymous identifier, a DID and a wallet address, and only the
// derivations are persisted.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	domainerrors "consentire/pkg/domain-errors"
	"consentire/internal/sentinel"
	"consentire/pkg/domain"
	"consentire/pkg/identity"
)

// Service handles user registration and lookup.
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

// Register derives and persists a user profile. Registering the same
// email/key pair twice returns the existing profile; the operation is
// idempotent because the derived identifier is deterministic.
func (s *Service) Register(ctx context.Context, email, publicKey string) (*Profile, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domainerrors.New(domainerrors.CodeValidation, "a valid email address is required")
	}
	if publicKey == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "public key is required")
	}

	profile := &Profile{
		ID:            identity.UserID(email, publicKey),
		DID:           identity.DID(publicKey),
		WalletAddress: identity.WalletAddress(publicKey),
		PublicKey:     publicKey,
		RegisteredAt:  s.now().UTC(),
	}

	err := s.store.Insert(ctx, profile)
	if errors.Is(err, sentinel.ErrConflict) {
		existing, getErr := s.store.GetByID(ctx, profile.ID)
		if getErr != nil {
			return nil, fmt.Errorf("load existing user: %w", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", profile.ID.String()),
		slog.String("did", profile.DID.String()),
	)
	return profile, nil
}

// Get returns a registered profile by derived identifier.
func (s *Service) Get(ctx context.Context, userID domain.UserID) (*Profile, error) {
	profile, err := s.store.GetByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "user is not registered")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return profile, nil
}
