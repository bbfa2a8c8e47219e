// Package registry manages data controller registration and resolution.
// Controllers register once with their organization identity; the consent
// engine resolves them by organization ID on every grant.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainerrors "consentire/pkg/domain-errors"
	"consentire/internal/sentinel"
	"consentire/pkg/domain"
	"consentire/pkg/identity"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Cache is a read-through cache in front of the controller store. A nil cache
// disables caching.
type Cache interface {
	Find(ctx context.Context, orgID domain.OrgID) (*ControllerRecord, error)
	Save(ctx context.Context, rec *ControllerRecord) error
	Invalidate(ctx context.Context, orgID domain.OrgID) error
}

// Service registers controllers and resolves them for the consent engine.
type Service struct {
	store  Store
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

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

// RegisterRequest carries the controller's self-declared identity.
type RegisterRequest struct {
	OrgID     domain.OrgID
	OrgName   string
	PublicKey string
	Metadata  map[string]string
}

// Register creates a controller registration. The returned API secret is
// generated server-side and stored only as a bcrypt hash; it cannot be
// recovered later.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegistrationResult, error) {
	if req.OrgID.IsNil() {
		return nil, domainerrors.New(domainerrors.CodeValidation, "organization id is required")
	}
	if req.OrgName == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "organization name is required")
	}
	if req.PublicKey == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "public key is required")
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate api secret: %w", err)
	}
	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api secret: %w", err)
	}

	rec := &ControllerRecord{
		Ref:            domain.ControllerRef(uuid.NewString()),
		OrgID:          req.OrgID,
		OrgName:        req.OrgName,
		ControllerHash: identity.ControllerHash(req.OrgID),
		PublicKey:      req.PublicKey,
		APISecretHash:  secretHash,
		Metadata:       req.Metadata,
		RegisteredAt:   s.now().UTC(),
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainerrors.New(domainerrors.CodeConflict,
				"organization is already registered")
		}
		return nil, fmt.Errorf("register controller: %w", err)
	}

	s.logger.InfoContext(ctx, "controller registered",
		slog.String("controller_ref", rec.Ref.String()),
		slog.String("controller_hash", rec.ControllerHash.String()),
	)

	return &RegistrationResult{
		Ref:            rec.Ref,
		ControllerHash: rec.ControllerHash,
		Secret:         secret,
		RegisteredAt:   rec.RegisteredAt,
	}, nil
}

// Resolve returns the registered controller for an organization ID. Cache
// failures degrade to a direct store read.
func (s *Service) Resolve(ctx context.Context, orgID domain.OrgID) (*ControllerRecord, error) {
	if s.cache != nil {
		rec, err := s.cache.Find(ctx, orgID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "controller cache read failed", slog.Any("error", err))
		}
	}

	rec, err := s.store.GetByOrgID(ctx, orgID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeControllerNotFound,
			"controller is not registered")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve controller: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Save(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "controller cache write failed", slog.Any("error", err))
		}
	}
	return rec, nil
}

// ResolveByRef returns a controller by its registration reference.
func (s *Service) ResolveByRef(ctx context.Context, ref domain.ControllerRef) (*ControllerRecord, error) {
	rec, err := s.store.GetByRef(ctx, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeControllerNotFound,
			"controller is not registered")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve controller: %w", err)
	}
	return rec, nil
}

// UpdateMetadata replaces a controller's mutable metadata. Identity fields
// cannot be changed after registration.
func (s *Service) UpdateMetadata(ctx context.Context, ref domain.ControllerRef, metadata map[string]string) error {
	rec, err := s.store.GetByRef(ctx, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domainerrors.New(domainerrors.CodeControllerNotFound,
			"controller is not registered")
	}
	if err != nil {
		return fmt.Errorf("load controller: %w", err)
	}

	if err := s.store.UpdateMetadata(ctx, ref, metadata); err != nil {
		return fmt.Errorf("update controller metadata: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, rec.OrgID); err != nil {
			s.logger.WarnContext(ctx, "controller cache invalidation failed", slog.Any("error", err))
		}
	}
	return nil
}

// VerifySecret checks a presented API secret against the stored bcrypt hash.
func (s *Service) VerifySecret(ctx context.Context, ref domain.ControllerRef, secret string) error {
	rec, err := s.store.GetByRef(ctx, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domainerrors.New(domainerrors.CodeUnauthorized, "invalid controller credentials")
	}
	if err != nil {
		return fmt.Errorf("load controller: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(rec.APISecretHash, []byte(secret)); err != nil {
		return domainerrors.New(domainerrors.CodeUnauthorized, "invalid controller credentials")
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
