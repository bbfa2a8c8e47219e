package proof

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentire/internal/consent/models"
	"consentire/pkg/identity"
)

func fixedOracle() *MockOracle {
	return NewMockOracle(
		WithNonceFunc(func() (string, error) { return strings.Repeat("ab", 32), nil }),
		WithClock(func() time.Time { return time.Unix(1700000000, 0).UTC() }),
	)
}

func testClaim() ConsentClaim {
	return ConsentClaim{
		UserID:         identity.UserID("alice@example.com", "pk_alice"),
		ControllerHash: identity.ControllerHash("acme"),
		PurposeHash:    identity.PurposeHash("marketing"),
		LawfulBasis:    models.BasisConsent,
	}
}

func TestProveConsentDeterministic(t *testing.T) {
	oracle := fixedOracle()
	ctx := context.Background()

	a, err := oracle.ProveConsent(ctx, testClaim())
	require.NoError(t, err)
	b, err := oracle.ProveConsent(ctx, testClaim())
	require.NoError(t, err)

	assert.JSONEq(t, string(a), string(b), "same claim and nonce must attest identically")
}

func TestAttestationExcludesRawInputs(t *testing.T) {
	oracle := fixedOracle()
	blob, err := oracle.ProveConsent(context.Background(), testClaim())
	require.NoError(t, err)

	// The attestation must not leak anything beyond hashes and metadata: no
	// email, no purpose text.
	assert.NotContains(t, string(blob), "alice@example.com")
	assert.NotContains(t, string(blob), "marketing")

	var att map[string]any
	require.NoError(t, json.Unmarshal(blob, &att))
	assert.Equal(t, "mock-commitment-v1", att["scheme"])
	assert.Equal(t, "consent_grant", att["claimType"])
	assert.Len(t, att["commitment"], 64)
}

func TestProveVerificationClaimType(t *testing.T) {
	oracle := fixedOracle()
	snapshot := RecordSnapshot{
		ConsentID:      "02712a091d7400586466369e5970e7272b014af0d3bdedd551a63937d2c12a67",
		UserID:         identity.UserID("alice@example.com", "pk_alice"),
		ControllerHash: identity.ControllerHash("acme"),
		PurposeHash:    identity.PurposeHash("marketing"),
		Status:         models.StatusGranted,
		GrantedAt:      time.Unix(1700000000, 0).UTC(),
	}
	blob, err := oracle.ProveVerification(context.Background(), snapshot)
	require.NoError(t, err)

	var att map[string]any
	require.NoError(t, json.Unmarshal(blob, &att))
	assert.Equal(t, "consent_verification", att["claimType"])
}

func TestDistinctClaimsDistinctCommitments(t *testing.T) {
	oracle := fixedOracle()
	ctx := context.Background()

	a, err := oracle.ProveConsent(ctx, testClaim())
	require.NoError(t, err)

	other := testClaim()
	other.PurposeHash = identity.PurposeHash("analytics")
	b, err := oracle.ProveConsent(ctx, other)
	require.NoError(t, err)

	assert.NotEqual(t, string(a), string(b))
}
