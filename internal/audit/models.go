package audit

import (
	"time"

	"consentire/pkg/domain"
)

// Entry is an append-only audit record for a consent lifecycle action. Keep it
// transport-agnostic so stores and sinks can fan out. Entries are never
// updated or deleted, and they are never read back for decision-making.
type Entry struct {
	ID           string
	ConsentID    domain.ConsentID // optional
	Actor        string           // pseudonymous user ID or controller ref
	Action       string
	Details      map[string]any
	LedgerTxHash string // optional, attached when the action was anchored
	Timestamp    time.Time
}
