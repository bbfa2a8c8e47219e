package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"consentire/pkg/identity"
)

// attestation is the envelope the mock oracle emits. A real proof backend
// would replace commitment with an actual proof; consumers treat the whole
// blob as opaque either way.
type attestation struct {
	Scheme     string    `json:"scheme"`
	ClaimType  string    `json:"claimType"`
	Commitment string    `json:"commitment"`
	Nonce      string    `json:"nonce"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// MockOracle produces structured stand-in attestations: a SHA-256 commitment
// over the claim plus a freshness nonce. It exists so the engine can be
// exercised end to end before a real proof system is wired in, and so tests
// get deterministic output via the injection points.
type MockOracle struct {
	nonce func() (string, error)
	now   func() time.Time
}

// MockOption configures the MockOracle.
type MockOption func(*MockOracle)

// WithNonceFunc overrides nonce generation, for deterministic tests.
func WithNonceFunc(fn func() (string, error)) MockOption {
	return func(o *MockOracle) { o.nonce = fn }
}

// WithClock overrides the issuance clock, for deterministic tests.
func WithClock(now func() time.Time) MockOption {
	return func(o *MockOracle) { o.now = now }
}

func NewMockOracle(opts ...MockOption) *MockOracle {
	o := &MockOracle{
		nonce: identity.Nonce,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *MockOracle) ProveConsent(_ context.Context, claim ConsentClaim) (json.RawMessage, error) {
	return o.attest("consent_grant", claim)
}

func (o *MockOracle) ProveVerification(_ context.Context, snapshot RecordSnapshot) (json.RawMessage, error) {
	return o.attest("consent_verification", snapshot)
}

func (o *MockOracle) attest(claimType string, claim any) (json.RawMessage, error) {
	payload, err := json.Marshal(claim)
	if err != nil {
		return nil, fmt.Errorf("encode proof claim: %w", err)
	}
	nonce, err := o.nonce()
	if err != nil {
		return nil, fmt.Errorf("proof nonce: %w", err)
	}
	att := attestation{
		Scheme:     "mock-commitment-v1",
		ClaimType:  claimType,
		Commitment: identity.Hash(string(payload) + ":" + nonce),
		Nonce:      nonce,
		IssuedAt:   o.now().UTC(),
	}
	blob, err := json.Marshal(att)
	if err != nil {
		return nil, fmt.Errorf("encode attestation: %w", err)
	}
	return blob, nil
}
