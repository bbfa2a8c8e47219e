package models

import (
	"encoding/json"
	"time"

	"consentire/pkg/domain"
)

// GrantResult is returned to the caller after a successful grant. LedgerTxHash
// carries whatever hash is available at return time; it may be empty and
// attached later out-of-band, keyed by ConsentID.
type GrantResult struct {
	ConsentID    domain.ConsentID `json:"consentId"`
	Status       Status           `json:"status"`
	GrantedAt    time.Time        `json:"grantedAt"`
	ExpiresAt    *time.Time       `json:"expiresAt,omitempty"`
	LedgerTxHash string           `json:"ledgerTxHash,omitempty"`
}

// VerifyReason distinguishes the non-valid outcomes of Verify. "Not found" and
// "expired" are result variants, not errors: the caller's behavior differs per
// variant.
type VerifyReason string

const (
	ReasonNotFound      VerifyReason = "not_found"
	ReasonExpired       VerifyReason = "expired"
	ReasonNotGranted    VerifyReason = "not_granted"
	ReasonValid         VerifyReason = ""
)

// VerifyResult is safe to hand to the controller or a regulator: it carries
// neither the raw purpose text nor any identity beyond the pseudonymous ID the
// caller already held.
type VerifyResult struct {
	Valid       bool             `json:"isValid"`
	ConsentID   domain.ConsentID `json:"consentId,omitempty"`
	Status      Status           `json:"status,omitempty"`
	Reason      VerifyReason     `json:"-"`
	Detail      string           `json:"error,omitempty"`
	Attestation json.RawMessage  `json:"attestation,omitempty"`
	MerkleProof json.RawMessage  `json:"ledgerMerkleProof,omitempty"`
}

// RevokeResult is returned after a successful revocation.
type RevokeResult struct {
	ConsentID    domain.ConsentID `json:"consentId"`
	Status       Status           `json:"status"`
	RevokedAt    time.Time        `json:"revokedAt"`
	LedgerTxHash string           `json:"ledgerTxHash,omitempty"`
}
