package models

import (
	"encoding/json"
	"time"

	"consentire/pkg/domain"
	dErrors "consentire/pkg/domain-errors"
)

// Status is the lifecycle state of a consent record. REVOKED and EXPIRED are
// terminal; there is no transition back to GRANTED and no transition may skip
// GRANTED.
type Status string

const (
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// IsValid reports whether the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusGranted, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// CanTransition reports whether from→to is a legal lifecycle transition.
// Only GRANTED→REVOKED and GRANTED→EXPIRED exist.
func CanTransition(from, to Status) bool {
	return from == StatusGranted && (to == StatusRevoked || to == StatusExpired)
}

// LawfulBasis is one of the GDPR-recognized justifications for processing.
type LawfulBasis string

const (
	BasisConsent            LawfulBasis = "consent"
	BasisContract           LawfulBasis = "contract"
	BasisLegalObligation    LawfulBasis = "legal_obligation"
	BasisVitalInterest      LawfulBasis = "vital_interest"
	BasisPublicTask         LawfulBasis = "public_task"
	BasisLegitimateInterest LawfulBasis = "legitimate_interest"
)

// IsValid reports whether the lawful basis is one of the GDPR-recognized values.
func (b LawfulBasis) IsValid() bool {
	switch b {
	case BasisConsent, BasisContract, BasisLegalObligation,
		BasisVitalInterest, BasisPublicTask, BasisLegitimateInterest:
		return true
	}
	return false
}

// Record captures a user's consent decision for a specific controller+purpose.
//
// # Scoping Invariant
//
// At most one record with status GRANTED may exist for a given
// (UserID, ControllerHash, PurposeHash) triple at any instant. The engine
// enforces this, not the store.
//
// Security implications:
//   - UserID, ControllerHash and PurposeHash are one-way digests; the raw
//     email and raw organization ID never appear in a Record
//   - ID alone is NOT sufficient to authorize access to a record; revocation
//     always validates ownership against UserID
//   - Purpose is the only free-text field; it is persisted but must never be
//     included in anything handed to a third party (the proof oracle and the
//     ledger only ever see PurposeHash)
type Record struct {
	ID             domain.ConsentID
	UserID         domain.UserID
	ControllerRef  domain.ControllerRef
	ControllerHash domain.ControllerHash
	Purpose        string
	PurposeHash    domain.PurposeHash
	DataCategories []string
	LawfulBasis    LawfulBasis
	Status         Status
	GrantedAt      time.Time
	ExpiresAt      *time.Time
	RevokedAt      *time.Time

	// LedgerTxHash is attached once the anchor confirms; empty while pending.
	LedgerTxHash string
	// ProofAttestation is the opaque blob captured from the proof oracle at
	// grant time.
	ProofAttestation json.RawMessage
}

// NewRecord creates a Record with domain invariant checks.
func NewRecord(consentID domain.ConsentID, userID domain.UserID, ref domain.ControllerRef,
	controllerHash domain.ControllerHash, purpose string, purposeHash domain.PurposeHash,
	categories []string, basis LawfulBasis, grantedAt time.Time, expiresAt *time.Time) (*Record, error) {

	if consentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent ID required")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user ID required")
	}
	if controllerHash.IsNil() || purposeHash.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "controller and purpose hashes required")
	}
	if purpose == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "purpose required")
	}
	if !basis.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid lawful basis")
	}
	if grantedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "grant time required")
	}
	return &Record{
		ID:             consentID,
		UserID:         userID,
		ControllerRef:  ref,
		ControllerHash: controllerHash,
		Purpose:        purpose,
		PurposeHash:    purposeHash,
		DataCategories: categories,
		LawfulBasis:    basis,
		Status:         StatusGranted,
		GrantedAt:      grantedAt,
		ExpiresAt:      expiresAt,
	}, nil
}

// IsExpired reports whether the record's expiry has passed. A record can be
// expired while its persisted Status still reads GRANTED; the engine flips it
// lazily on the next read or verify.
func (r Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// IsActive reports whether the consent is currently valid.
func (r Record) IsActive(now time.Time) bool {
	return r.Status == StatusGranted && !r.IsExpired(now)
}

// EffectiveStatus reports the lifecycle state at the provided time, applying
// the lazy-expiry rule to the persisted status.
func (r Record) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusGranted && r.IsExpired(now) {
		return StatusExpired
	}
	return r.Status
}

// Key is the serialization key for per-record mutual exclusion.
type Key struct {
	UserID         domain.UserID
	ControllerHash domain.ControllerHash
	PurposeHash    domain.PurposeHash
}

// Key returns the record's serialization key.
func (r Record) Key() Key {
	return Key{UserID: r.UserID, ControllerHash: r.ControllerHash, PurposeHash: r.PurposeHash}
}
