// Package identity derives stable pseudonymous identifiers from sensitive
// attributes. Every function is a pure, one-way SHA-256 mapping: raw emails,
// organization IDs and purpose texts never need to be persisted or shown to
// third parties, only their digests.
//
// The derivations are part of the wire contract. Two deployments must produce
// byte-identical output for the same input, so the concatenation formats below
// must not change.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"consentire/pkg/domain"
)

// DIDScheme is the method name used in derived decentralized identifiers.
const DIDScheme = "consentire"

// Hash returns the lowercase hex SHA-256 digest of the input.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// ControllerHash derives the pseudonymous controller identifier from the
// caller-supplied organization ID.
func ControllerHash(orgID domain.OrgID) domain.ControllerHash {
	return domain.ControllerHash(Hash(string(orgID)))
}

// PurposeHash derives the correlation hash for a purpose text. Identical
// purpose strings always hash identically; the engine relies on this for its
// per-key uniqueness check.
func PurposeHash(purpose string) domain.PurposeHash {
	return domain.PurposeHash(Hash(purpose))
}

// UserID derives the only user identifier the system persists. The raw email
// never leaves this function.
func UserID(email, publicKey string) domain.UserID {
	return domain.UserID(Hash(email + ":" + publicKey))
}

// ConsentID derives the record identifier. The grant timestamp (Unix
// milliseconds) is part of the input so two otherwise identical grants at
// different instants get distinct IDs. It is always engine-computed; callers
// cannot forge it.
func ConsentID(userID domain.UserID, orgID domain.OrgID, purpose string, timestampMillis int64) domain.ConsentID {
	input := fmt.Sprintf("%s:%s:%s:%d", userID, orgID, purpose, timestampMillis)
	return domain.ConsentID(Hash(input))
}

// DID derives a stable decentralized identifier from a public key. It is the
// identity presented to third parties in place of anything reversible.
func DID(publicKey string) domain.DID {
	keyHash := Hash(publicKey)
	return domain.DID("did:" + DIDScheme + ":" + keyHash[:16])
}

// WalletAddress derives a 40-hex-char address from a public key.
func WalletAddress(publicKey string) string {
	return Hash(publicKey)[:40]
}

// Nonce returns 32 random bytes hex encoded, for proof freshness.
func Nonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
