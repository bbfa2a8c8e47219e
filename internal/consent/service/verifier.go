package service

import (
	"context"
	"crypto/subtle"

	"consentire/internal/user"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/domain"
	"consentire/pkg/identity"
)

// PublicKeyResolver looks up a registered user's public key. Satisfied by
// user.Service.
type PublicKeyResolver interface {
	Get(ctx context.Context, userID domain.UserID) (*user.Profile, error)
}

// HashRevocationVerifier is the development-grade signature scheme: the
// revocation signature is the SHA-256 digest of the revocation message bound
// to the owner's public key. It proves possession of the key material the
// user registered with, not a real asymmetric signature.
type HashRevocationVerifier struct {
	users PublicKeyResolver
}

func NewHashRevocationVerifier(users PublicKeyResolver) *HashRevocationVerifier {
	return &HashRevocationVerifier{users: users}
}

// RevocationMessage is the canonical string a user signs to revoke a consent.
func RevocationMessage(consentID domain.ConsentID) string {
	return "revoke:" + consentID.String()
}

// SignRevocation computes the expected signature for a consent and key. Used
// by clients and tests; the engine only ever verifies.
func SignRevocation(consentID domain.ConsentID, publicKey string) string {
	return identity.Hash(RevocationMessage(consentID) + ":" + publicKey)
}

func (v *HashRevocationVerifier) VerifyRevocation(ctx context.Context, userID domain.UserID,
	consentID domain.ConsentID, signature string) error {

	if signature == "" {
		return domainerrors.New(domainerrors.CodeInvalidSignature, "revocation signature is required")
	}
	profile, err := v.users.Get(ctx, userID)
	if err != nil {
		// An unknown user gets the same answer as a bad signature.
		return domainerrors.New(domainerrors.CodeInvalidSignature, "revocation signature is invalid")
	}
	expected := SignRevocation(consentID, profile.PublicKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return domainerrors.New(domainerrors.CodeInvalidSignature, "revocation signature is invalid")
	}
	return nil
}
