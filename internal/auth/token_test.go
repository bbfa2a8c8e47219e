package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentire/pkg/domain"
	"consentire/pkg/identity"
)

func TestIssueAndValidateUserToken(t *testing.T) {
	svc := NewTokenService("test-signing-key", "consentire", 15*time.Minute)
	userID := identity.UserID("alice@example.com", "pk_alice")

	token, err := svc.IssueUserToken(userID)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Empty(t, claims.ControllerRef)
}

func TestIssueAndValidateControllerToken(t *testing.T) {
	svc := NewTokenService("test-signing-key", "consentire", 15*time.Minute)
	ref := domain.ControllerRef("ref-acme")

	token, err := svc.IssueControllerToken(ref)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, ref.String(), claims.ControllerRef)
	assert.Empty(t, claims.UserID)
}

func TestValidateExpiredToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewTokenService("test-signing-key", "consentire", time.Minute,
		WithClock(func() time.Time { return now }))

	token, err := svc.IssueUserToken(identity.UserID("alice@example.com", "pk_alice"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	issuer := NewTokenService("key-one", "consentire", time.Minute)
	verifier := NewTokenService("key-two", "consentire", time.Minute)

	token, err := issuer.IssueUserToken(identity.UserID("alice@example.com", "pk_alice"))
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-signing-key", "consentire", time.Minute)

	_, err := svc.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}
