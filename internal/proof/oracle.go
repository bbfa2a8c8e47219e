// Package proof defines the attestation contract between the consent engine
// and a zero-knowledge proof backend. The engine treats the backend as an
// opaque prove/verify oracle: claims go in as hashes, attestations come out as
// opaque blobs. Raw purpose text and raw user identity never cross this
// boundary.
package proof

import (
	"context"
	"encoding/json"
	"time"

	"consentire/internal/consent/models"
	"consentire/pkg/domain"
)

// ConsentClaim is the proof input for "this user holds a GRANTED consent for
// this controller+purpose with this lawful basis". All identifying fields are
// one-way digests.
type ConsentClaim struct {
	UserID         domain.UserID         `json:"userId"`
	ControllerHash domain.ControllerHash `json:"controllerHash"`
	PurposeHash    domain.PurposeHash    `json:"purposeHash"`
	DataCategories []string              `json:"dataCategories,omitempty"`
	LawfulBasis    models.LawfulBasis    `json:"lawfulBasis"`
}

// RecordSnapshot is the proof input for a verification attestation over an
// existing record.
type RecordSnapshot struct {
	ConsentID      domain.ConsentID      `json:"consentId"`
	UserID         domain.UserID         `json:"userId"`
	ControllerHash domain.ControllerHash `json:"controllerHash"`
	PurposeHash    domain.PurposeHash    `json:"purposeHash"`
	Status         models.Status         `json:"status"`
	GrantedAt      time.Time             `json:"grantedAt"`
	ExpiresAt      *time.Time            `json:"expiresAt,omitempty"`
	LedgerTxHash   string                `json:"ledgerTxHash,omitempty"`
}

// Oracle produces opaque attestations. Implementations may be slow; callers
// must not hold per-record locks across these calls.
type Oracle interface {
	ProveConsent(ctx context.Context, claim ConsentClaim) (json.RawMessage, error)
	ProveVerification(ctx context.Context, snapshot RecordSnapshot) (json.RawMessage, error)
}
