package user

import (
	"time"

	"consentire/pkg/domain"
)

// Profile is what the system knows about a registered data subject. All
// identifiers are one-way derivations; the raw email is never stored.
type Profile struct {
	ID            domain.UserID `json:"userId"`
	DID           domain.DID    `json:"did"`
	WalletAddress string        `json:"walletAddress"`
	PublicKey     string        `json:"publicKey"`
	RegisteredAt  time.Time     `json:"registeredAt"`
}
