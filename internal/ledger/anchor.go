// Package ledger defines the anchoring contract against an external
// append-only log. Anchoring is tamper evidence, not authority: the
// authoritative state transition always happens in the consent store first,
// and the ledger transaction hash is an attached, eventually-consistent
// attribute.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"consentire/internal/consent/models"
	"consentire/pkg/domain"
)

// Event is the anchoring payload for a consent lifecycle transition. Hashes
// only; the ledger never sees purpose text or any reversible identity.
type Event struct {
	ConsentID      domain.ConsentID      `json:"consentId"`
	UserIDHash     string                `json:"userId"`
	ControllerHash domain.ControllerHash `json:"controllerHash"`
	PurposeHash    domain.PurposeHash    `json:"purposeHash"`
	Status         models.Status         `json:"status"`
	GrantedAt      time.Time             `json:"grantedAt"`
	ExpiresAt      *time.Time            `json:"expiresAt,omitempty"`
}

// Anchor is the transport to the external ledger. Calls may suspend for
// unbounded external latency; callers must not hold per-record locks across
// them, and must not block a grant/revoke decision on their completion.
//
// UpdateStatus is idempotent: invoking it twice for the same consentID/status
// pair is safe and yields the same transaction hash.
type Anchor interface {
	Anchor(ctx context.Context, event Event) (txHash string, err error)
	GetProof(ctx context.Context, consentID domain.ConsentID) (json.RawMessage, error)
	UpdateStatus(ctx context.Context, consentID domain.ConsentID, status models.Status) (txHash string, err error)
}
