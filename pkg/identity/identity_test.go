package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentire/pkg/domain"
)

// Fixed vectors: these digests are part of the wire contract and must stay
// byte-identical across reimplementations.
func TestHashVectors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"acme", "822b33ad87c148a0a20a5ba7cd5ebcaa68d36a18e7aad165554903f52ca82757"},
		{"marketing", "e2a530e251d3675034d23f5c5f87f54ec3182a088ba7d13350824794f8e6b76e"},
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Hash(tt.input), "Hash(%q)", tt.input)
	}
}

func TestControllerAndPurposeHash(t *testing.T) {
	assert.Equal(t,
		domain.ControllerHash("822b33ad87c148a0a20a5ba7cd5ebcaa68d36a18e7aad165554903f52ca82757"),
		ControllerHash("acme"))
	assert.Equal(t,
		domain.PurposeHash("e2a530e251d3675034d23f5c5f87f54ec3182a088ba7d13350824794f8e6b76e"),
		PurposeHash("marketing"))

	// Determinism: identical inputs hash identically, distinct inputs differ.
	assert.Equal(t, PurposeHash("marketing"), PurposeHash("marketing"))
	assert.NotEqual(t, PurposeHash("marketing"), PurposeHash("analytics"))
}

func TestUserID(t *testing.T) {
	got := UserID("alice@example.com", "pk_alice")
	assert.Equal(t, domain.UserID("4fad723c75e2e0972ce3a680b0e93d5bd4b6c5ec25e16ea94f19b0a08bccb99d"), got)
	assert.True(t, domain.IsHashHex(string(got)), "user ID must be a hex digest, never the raw email")
}

func TestConsentID(t *testing.T) {
	userID := UserID("alice@example.com", "pk_alice")
	got := ConsentID(userID, "acme", "marketing", 1700000000000)
	assert.Equal(t, domain.ConsentID("02712a091d7400586466369e5970e7272b014af0d3bdedd551a63937d2c12a67"), got)

	// Same grant at a different instant must get a distinct ID.
	other := ConsentID(userID, "acme", "marketing", 1700000000001)
	assert.NotEqual(t, got, other)
}

func TestDID(t *testing.T) {
	assert.Equal(t, domain.DID("did:consentire:92a70d4d3ba6c5ec"), DID("pk_alice"))
}

func TestWalletAddress(t *testing.T) {
	got := WalletAddress("pk_alice")
	assert.Equal(t, "92a70d4d3ba6c5ec85edb06efb045c18525aff99", got)
	assert.Len(t, got, 40)
}

func TestNonce(t *testing.T) {
	a, err := Nonce()
	require.NoError(t, err)
	b, err := Nonce()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
