package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentire/pkg/domain"
	dErrors "consentire/pkg/domain-errors"
)

var (
	testConsentID      = domain.ConsentID("02712a091d7400586466369e5970e7272b014af0d3bdedd551a63937d2c12a67")
	testUserID         = domain.UserID("4fad723c75e2e0972ce3a680b0e93d5bd4b6c5ec25e16ea94f19b0a08bccb99d")
	testControllerHash = domain.ControllerHash("822b33ad87c148a0a20a5ba7cd5ebcaa68d36a18e7aad165554903f52ca82757")
	testPurposeHash    = domain.PurposeHash("e2a530e251d3675034d23f5c5f87f54ec3182a088ba7d13350824794f8e6b76e")
)

func validRecord(t *testing.T, expiresAt *time.Time) *Record {
	t.Helper()
	r, err := NewRecord(testConsentID, testUserID, "ctrl-ref", testControllerHash,
		"marketing", testPurposeHash, []string{"email"}, BasisConsent, time.Now(), expiresAt)
	require.NoError(t, err)
	return r
}

func TestNewRecordInvariants(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		fn   func() (*Record, error)
	}{
		{"missing consent ID", func() (*Record, error) {
			return NewRecord("", testUserID, "ref", testControllerHash, "marketing", testPurposeHash, nil, BasisConsent, now, nil)
		}},
		{"missing user ID", func() (*Record, error) {
			return NewRecord(testConsentID, "", "ref", testControllerHash, "marketing", testPurposeHash, nil, BasisConsent, now, nil)
		}},
		{"missing purpose", func() (*Record, error) {
			return NewRecord(testConsentID, testUserID, "ref", testControllerHash, "", testPurposeHash, nil, BasisConsent, now, nil)
		}},
		{"invalid lawful basis", func() (*Record, error) {
			return NewRecord(testConsentID, testUserID, "ref", testControllerHash, "marketing", testPurposeHash, nil, "fair_use", now, nil)
		}},
		{"zero grant time", func() (*Record, error) {
			return NewRecord(testConsentID, testUserID, "ref", testControllerHash, "marketing", testPurposeHash, nil, BasisConsent, time.Time{}, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestNewRecordStartsGranted(t *testing.T) {
	r := validRecord(t, nil)
	assert.Equal(t, StatusGranted, r.Status)
	assert.Empty(t, r.LedgerTxHash, "tx hash is attached after the anchor confirms")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusGranted, StatusRevoked))
	assert.True(t, CanTransition(StatusGranted, StatusExpired))
	assert.False(t, CanTransition(StatusRevoked, StatusGranted))
	assert.False(t, CanTransition(StatusExpired, StatusRevoked))
	assert.False(t, CanTransition(StatusRevoked, StatusExpired))
}

func TestEffectiveStatusAppliesLazyExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Millisecond)
	r := validRecord(t, &past)

	// Persisted status still reads GRANTED, but the record is expired.
	assert.Equal(t, StatusGranted, r.Status)
	assert.True(t, r.IsExpired(now))
	assert.Equal(t, StatusExpired, r.EffectiveStatus(now))
	assert.False(t, r.IsActive(now))
}

func TestEffectiveStatusTerminalStates(t *testing.T) {
	now := time.Now()
	r := validRecord(t, nil)
	r.Status = StatusRevoked
	revokedAt := now
	r.RevokedAt = &revokedAt

	assert.Equal(t, StatusRevoked, r.EffectiveStatus(now.Add(time.Hour)))
	assert.False(t, r.IsActive(now))
}

func TestIsActiveWithinExpiry(t *testing.T) {
	future := time.Now().Add(time.Hour)
	r := validRecord(t, &future)
	assert.True(t, r.IsActive(time.Now()))
}

func TestRecordKey(t *testing.T) {
	r := validRecord(t, nil)
	k := r.Key()
	assert.Equal(t, testUserID, k.UserID)
	assert.Equal(t, testControllerHash, k.ControllerHash)
	assert.Equal(t, testPurposeHash, k.PurposeHash)
}
