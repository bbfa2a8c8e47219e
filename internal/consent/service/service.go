// Package service implements the consent engine: grant, verify, revoke and
// list operations over pseudonymous consent records, with proof-oracle
// attestations and best-effort ledger anchoring.
//
// Concurrency model: every state-changing decision for a
// (user, controller, purpose) key happens under that key's sharded mutex.
// The lock is never held across a proof oracle or ledger call; those are
// external round-trips with unbounded latency.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"consentire/internal/audit"
	"consentire/internal/consent/models"
	"consentire/internal/consent/store"
	"consentire/internal/ledger"
	"consentire/internal/proof"
	"consentire/internal/sentinel"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/domain"
	"consentire/pkg/identity"
	platformsync "consentire/pkg/platform/sync"
)

// Service is the consent engine.
type Service struct {
	store      store.Store
	registry   ControllerRegistry
	oracle     proof.Oracle
	anchor     ledger.Anchor
	verifier   RevocationVerifier
	auditor    Auditor
	reconciler PendingEnqueuer
	locks      *platformsync.ShardedMutex
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	// defaultTTL bounds grants submitted without an explicit expiry. Zero
	// leaves such grants open-ended.
	defaultTTL time.Duration
}

type Option func(*Service)

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithReconciler(r PendingEnqueuer) Option {
	return func(s *Service) { s.reconciler = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultTTL applies a deployment-wide expiry to grants that carry none.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Service) { s.defaultTTL = d }
}

func NewService(st store.Store, reg ControllerRegistry, oracle proof.Oracle,
	anchor ledger.Anchor, verifier RevocationVerifier, opts ...Option) *Service {

	s := &Service{
		store:    st,
		registry: reg,
		oracle:   oracle,
		anchor:   anchor,
		verifier: verifier,
		locks:    platformsync.NewShardedMutex(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("consentire/consent"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GrantRequest carries a user's consent decision. OrgID is the controller's
// raw organization ID; the engine resolves and hashes it, callers never submit
// hashes directly.
type GrantRequest struct {
	UserID         domain.UserID
	OrgID          domain.OrgID
	Purpose        string
	DataCategories []string
	LawfulBasis    models.LawfulBasis
	ExpiresAt      *time.Time
}

// Grant records a new consent. At most one GRANTED record may exist per
// (user, controller, purpose) key; a concurrent or repeated grant for an
// occupied key fails with CodeDuplicateConsent.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*models.GrantResult, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Grant")
	defer span.End()
	defer s.observe("grant", time.Now())

	if err := s.validateGrant(req); err != nil {
		grantsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ctrl, err := s.registry.Resolve(ctx, req.OrgID)
	if err != nil {
		grantsTotal.WithLabelValues("controller_not_found").Inc()
		return nil, err
	}

	grantedAt := s.now().UTC()
	if req.ExpiresAt == nil && s.defaultTTL > 0 {
		exp := grantedAt.Add(s.defaultTTL)
		req.ExpiresAt = &exp
	}
	purposeHash := identity.PurposeHash(req.Purpose)
	consentID := identity.ConsentID(req.UserID, req.OrgID, req.Purpose, grantedAt.UnixMilli())

	// Prove before locking; the oracle round-trip must not serialize grants.
	attestation, err := s.oracle.ProveConsent(ctx, proof.ConsentClaim{
		UserID:         req.UserID,
		ControllerHash: ctrl.ControllerHash,
		PurposeHash:    purposeHash,
		DataCategories: req.DataCategories,
		LawfulBasis:    req.LawfulBasis,
	})
	if err != nil {
		grantsTotal.WithLabelValues("proof_failed").Inc()
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable,
			"proof oracle unavailable")
	}

	record, err := models.NewRecord(consentID, req.UserID, ctrl.Ref, ctrl.ControllerHash,
		req.Purpose, purposeHash, req.DataCategories, req.LawfulBasis, grantedAt, req.ExpiresAt)
	if err != nil {
		grantsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	record.ProofAttestation = attestation

	lockKey := platformsync.Key(req.UserID.String(), ctrl.ControllerHash.String(), purposeHash.String())
	s.locks.Lock(lockKey)
	inserted, err := s.insertLocked(ctx, record)
	s.locks.Unlock(lockKey)
	if err != nil {
		grantsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persist consent: %w", err)
	}
	if !inserted {
		grantsTotal.WithLabelValues("duplicate").Inc()
		return nil, domainerrors.New(domainerrors.CodeDuplicateConsent,
			"an active consent already exists for this controller and purpose")
	}

	txHash := s.anchorGrant(ctx, record)

	s.audit(ctx, audit.Entry{
		ConsentID:    consentID,
		Actor:        req.UserID.String(),
		Action:       models.AuditActionConsentGranted,
		LedgerTxHash: txHash,
		Details: map[string]any{
			"controllerHash": ctrl.ControllerHash.String(),
			"purposeHash":    purposeHash.String(),
			"lawfulBasis":    string(req.LawfulBasis),
			"reason":         models.AuditReasonUserInitiated,
		},
	})

	grantsTotal.WithLabelValues("granted").Inc()
	return &models.GrantResult{
		ConsentID:    consentID,
		Status:       models.StatusGranted,
		GrantedAt:    grantedAt,
		ExpiresAt:    req.ExpiresAt,
		LedgerTxHash: txHash,
	}, nil
}

// insertLocked applies the lazy-expiry rule to any stale occupant of the key,
// then attempts the atomic insert. Caller holds the key lock.
func (s *Service) insertLocked(ctx context.Context, record *models.Record) (bool, error) {
	existing, err := s.store.GetByKey(ctx, record.Key())
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, err
	}
	if existing != nil && existing.Status == models.StatusGranted && existing.IsExpired(s.now()) {
		s.expireLocked(ctx, existing)
	}
	return s.store.InsertIfAbsentGranted(ctx, record)
}

// VerifyRequest identifies the consent a controller wants checked.
type VerifyRequest struct {
	UserID  domain.UserID
	OrgID   domain.OrgID
	Purpose string
}

// Verify reports whether an active consent exists for the key. Missing and
// expired consents are result variants, not errors. A GRANTED record past its
// expiry is flipped to EXPIRED before the result is built.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*models.VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Verify")
	defer span.End()
	defer s.observe("verify", time.Now())

	if req.UserID.IsNil() || req.OrgID.IsNil() || req.Purpose == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation,
			"user id, organization id and purpose are required")
	}

	key := models.Key{
		UserID:         req.UserID,
		ControllerHash: identity.ControllerHash(req.OrgID),
		PurposeHash:    identity.PurposeHash(req.Purpose),
	}

	lockKey := platformsync.Key(key.UserID.String(), key.ControllerHash.String(), key.PurposeHash.String())
	s.locks.Lock(lockKey)
	record, err := s.store.GetByKey(ctx, key)
	if err != nil {
		s.locks.Unlock(lockKey)
		if errors.Is(err, sentinel.ErrNotFound) {
			verificationsTotal.WithLabelValues("not_found").Inc()
			return &models.VerifyResult{
				Valid:  false,
				Reason: models.ReasonNotFound,
				Detail: "no consent record found",
			}, nil
		}
		return nil, fmt.Errorf("load consent: %w", err)
	}

	if record.Status == models.StatusGranted && record.IsExpired(s.now()) {
		s.expireLocked(ctx, record)
	}
	status := record.Status
	s.locks.Unlock(lockKey)

	if status != models.StatusGranted {
		result := &models.VerifyResult{
			Valid:     false,
			ConsentID: record.ID,
			Status:    status,
		}
		if status == models.StatusExpired {
			result.Reason = models.ReasonExpired
			result.Detail = "consent has expired"
			verificationsTotal.WithLabelValues("expired").Inc()
		} else {
			result.Reason = models.ReasonNotGranted
			result.Detail = fmt.Sprintf("consent is %s", status)
			verificationsTotal.WithLabelValues("not_granted").Inc()
		}
		return result, nil
	}

	// Attestation and ledger proof decorate an already-decided result. Losing
	// them degrades the response, never the verdict.
	result := &models.VerifyResult{
		Valid:     true,
		ConsentID: record.ID,
		Status:    models.StatusGranted,
		Reason:    models.ReasonValid,
	}

	attestation, err := s.oracle.ProveVerification(ctx, proof.RecordSnapshot{
		ConsentID:      record.ID,
		UserID:         record.UserID,
		ControllerHash: record.ControllerHash,
		PurposeHash:    record.PurposeHash,
		Status:         record.Status,
		GrantedAt:      record.GrantedAt,
		ExpiresAt:      record.ExpiresAt,
		LedgerTxHash:   record.LedgerTxHash,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "verification attestation failed",
			slog.String("consent_id", record.ID.String()),
			slog.Any("error", err),
		)
	} else {
		result.Attestation = attestation
	}

	if proofBlob, err := s.anchor.GetProof(ctx, record.ID); err != nil {
		s.logger.WarnContext(ctx, "ledger proof unavailable",
			slog.String("consent_id", record.ID.String()),
			slog.Any("error", err),
		)
	} else {
		result.MerkleProof = proofBlob
	}

	s.audit(ctx, audit.Entry{
		ConsentID: record.ID,
		Actor:     req.UserID.String(),
		Action:    models.AuditActionConsentVerified,
		Details: map[string]any{
			"controllerHash": key.ControllerHash.String(),
			"purposeHash":    key.PurposeHash.String(),
			"isValid":        true,
		},
	})

	verificationsTotal.WithLabelValues("valid").Inc()
	return result, nil
}

// RevokeRequest withdraws a consent. Signature must be the owner's revocation
// signature over the consent ID.
type RevokeRequest struct {
	ConsentID domain.ConsentID
	UserID    domain.UserID
	Signature string
}

// Revoke transitions a GRANTED consent to REVOKED. Ownership is checked
// before anything else; a caller probing someone else's consent ID learns
// nothing beyond "not found".
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (*models.RevokeResult, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Revoke")
	defer span.End()
	defer s.observe("revoke", time.Now())

	if req.ConsentID.IsNil() || req.UserID.IsNil() {
		return nil, domainerrors.New(domainerrors.CodeValidation,
			"consent id and user id are required")
	}

	record, err := s.store.GetByID(ctx, req.ConsentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		revocationsTotal.WithLabelValues("not_found").Inc()
		return nil, domainerrors.New(domainerrors.CodeNotFound, "consent record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load consent: %w", err)
	}
	if record.UserID != req.UserID {
		revocationsTotal.WithLabelValues("not_found").Inc()
		return nil, domainerrors.New(domainerrors.CodeNotFound, "consent record not found")
	}

	if err := s.verifier.VerifyRevocation(ctx, req.UserID, req.ConsentID, req.Signature); err != nil {
		revocationsTotal.WithLabelValues("bad_signature").Inc()
		return nil, err
	}

	revokedAt := s.now().UTC()
	lockKey := platformsync.Key(record.UserID.String(), record.ControllerHash.String(), record.PurposeHash.String())
	s.locks.Lock(lockKey)
	swapped, err := s.store.UpdateStatus(ctx, req.ConsentID, models.StatusGranted, models.StatusRevoked, revokedAt)
	if err == nil && !swapped {
		// CAS lost; re-read for the actual state under the same lock.
		if current, readErr := s.store.GetByID(ctx, req.ConsentID); readErr == nil {
			record = current
		}
	}
	s.locks.Unlock(lockKey)
	if err != nil {
		revocationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("revoke consent: %w", err)
	}
	if !swapped {
		revocationsTotal.WithLabelValues("invalid_state").Inc()
		return nil, domainerrors.New(domainerrors.CodeInvalidState,
			fmt.Sprintf("consent is %s, only granted consents can be revoked", record.Status))
	}

	txHash := s.anchorStatus(ctx, req.ConsentID, models.StatusRevoked)

	s.audit(ctx, audit.Entry{
		ConsentID:    req.ConsentID,
		Actor:        req.UserID.String(),
		Action:       models.AuditActionConsentRevoked,
		LedgerTxHash: txHash,
		Details: map[string]any{
			"reason": models.AuditReasonUserInitiated,
		},
	})

	revocationsTotal.WithLabelValues("revoked").Inc()
	return &models.RevokeResult{
		ConsentID:    req.ConsentID,
		Status:       models.StatusRevoked,
		RevokedAt:    revokedAt,
		LedgerTxHash: txHash,
	}, nil
}

// GetActiveConsents lists the user's currently valid consents, most recent
// first. GRANTED records found past their expiry are flipped and excluded.
func (s *Service) GetActiveConsents(ctx context.Context, userID domain.UserID) ([]*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "consent.GetActiveConsents")
	defer span.End()

	if userID.IsNil() {
		return nil, domainerrors.New(domainerrors.CodeValidation, "user id is required")
	}

	granted := models.StatusGranted
	records, err := s.store.ListByUser(ctx, userID, &granted)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}

	active := make([]*models.Record, 0, len(records))
	for _, record := range records {
		if record.IsExpired(s.now()) {
			lockKey := platformsync.Key(record.UserID.String(), record.ControllerHash.String(), record.PurposeHash.String())
			s.locks.Lock(lockKey)
			s.expireLocked(ctx, record)
			s.locks.Unlock(lockKey)
			continue
		}
		active = append(active, record)
	}
	return active, nil
}

// ListConsents returns the user's consent history, optionally filtered by
// persisted status.
func (s *Service) ListConsents(ctx context.Context, userID domain.UserID, status *models.Status) ([]*models.Record, error) {
	if userID.IsNil() {
		return nil, domainerrors.New(domainerrors.CodeValidation, "user id is required")
	}
	records, err := s.store.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return records, nil
}

// GetConsent returns one of the user's consent records by ID. Ownership is
// enforced the same way as Revoke.
func (s *Service) GetConsent(ctx context.Context, consentID domain.ConsentID, userID domain.UserID) (*models.Record, error) {
	record, err := s.store.GetByID(ctx, consentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "consent record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load consent: %w", err)
	}
	if record.UserID != userID {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "consent record not found")
	}
	return record, nil
}

// expireLocked flips a stale GRANTED record to EXPIRED. Caller holds the key
// lock; the ledger update is deferred to the reconciler so the lock is never
// held across an external call. Losing the CAS means another goroutine already
// transitioned the record, which is fine.
func (s *Service) expireLocked(ctx context.Context, record *models.Record) {
	swapped, err := s.store.UpdateStatus(ctx, record.ID, models.StatusGranted, models.StatusExpired, s.now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "lazy expiry failed",
			slog.String("consent_id", record.ID.String()),
			slog.Any("error", err),
		)
		return
	}
	if !swapped {
		if current, readErr := s.store.GetByID(ctx, record.ID); readErr == nil {
			record.Status = current.Status
		}
		return
	}
	record.Status = models.StatusExpired
	lazyExpiriesTotal.Inc()

	if s.reconciler != nil {
		s.reconciler.Enqueue(ledger.Pending{
			ConsentID: record.ID,
			Status:    models.StatusExpired,
		})
	}
	s.audit(ctx, audit.Entry{
		ConsentID: record.ID,
		Actor:     record.UserID.String(),
		Action:    models.AuditActionConsentExpired,
		Details: map[string]any{
			"reason": models.AuditReasonLazyExpiry,
		},
	})
}

// anchorGrant attempts the inline ledger anchor for a fresh grant. On failure
// the event is handed to the reconciler and the grant proceeds with an empty
// tx hash.
func (s *Service) anchorGrant(ctx context.Context, record *models.Record) string {
	event := ledger.Event{
		ConsentID:      record.ID,
		UserIDHash:     record.UserID.String(),
		ControllerHash: record.ControllerHash,
		PurposeHash:    record.PurposeHash,
		Status:         models.StatusGranted,
		GrantedAt:      record.GrantedAt,
		ExpiresAt:      record.ExpiresAt,
	}
	txHash, err := s.anchor.Anchor(ctx, event)
	if err != nil {
		s.logger.WarnContext(ctx, "inline ledger anchor failed, deferring",
			slog.String("consent_id", record.ID.String()),
			slog.Any("error", err),
		)
		if s.reconciler != nil {
			s.reconciler.Enqueue(ledger.Pending{ConsentID: record.ID, Event: &event})
		}
		return ""
	}
	if err := s.store.AttachLedgerTxHash(ctx, record.ID, txHash); err != nil {
		s.logger.ErrorContext(ctx, "failed to attach ledger tx hash",
			slog.String("consent_id", record.ID.String()),
			slog.Any("error", err),
		)
	}
	return txHash
}

// anchorStatus mirrors anchorGrant for status transitions.
func (s *Service) anchorStatus(ctx context.Context, consentID domain.ConsentID, status models.Status) string {
	txHash, err := s.anchor.UpdateStatus(ctx, consentID, status)
	if err != nil {
		s.logger.WarnContext(ctx, "inline ledger status update failed, deferring",
			slog.String("consent_id", consentID.String()),
			slog.Any("error", err),
		)
		if s.reconciler != nil {
			s.reconciler.Enqueue(ledger.Pending{ConsentID: consentID, Status: status})
		}
		return ""
	}
	return txHash
}

func (s *Service) validateGrant(req GrantRequest) error {
	if req.UserID.IsNil() {
		return domainerrors.New(domainerrors.CodeValidation, "user id is required")
	}
	if req.OrgID.IsNil() {
		return domainerrors.New(domainerrors.CodeValidation, "organization id is required")
	}
	if req.Purpose == "" {
		return domainerrors.New(domainerrors.CodeValidation, "purpose is required")
	}
	if !req.LawfulBasis.IsValid() {
		return domainerrors.New(domainerrors.CodeValidation, "invalid lawful basis")
	}
	// A past ExpiresAt is accepted; lazy expiry observes it on the next read.
	return nil
}

func (s *Service) audit(ctx context.Context, entry audit.Entry) {
	if s.auditor != nil {
		s.auditor.Record(ctx, entry)
	}
}

func (s *Service) observe(operation string, start time.Time) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
