package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"consentire/internal/consent/models"
	"consentire/internal/sentinel"
	"consentire/pkg/domain"
	"consentire/pkg/identity"
)

// MockClient simulates the external ledger in process memory. Transaction
// hashes are derived deterministically from the anchored payload, and status
// updates are idempotent per (consentID, status) pair, matching the contract a
// real transport must honor.
type MockClient struct {
	mu      sync.Mutex
	entries map[domain.ConsentID][]txEntry
	now     func() time.Time

	// FailNext, when set, makes the next anchoring call fail. Test hook for
	// exercising the pending-reconcile path.
	FailNext bool
}

type txEntry struct {
	Status models.Status
	TxHash string
	At     time.Time
}

// MockClientOption configures the MockClient.
type MockClientOption func(*MockClient)

// WithMockClock overrides the ledger timestamp clock, for deterministic tests.
func WithMockClock(now func() time.Time) MockClientOption {
	return func(c *MockClient) { c.now = now }
}

func NewMockClient(opts ...MockClientOption) *MockClient {
	c := &MockClient{
		entries: make(map[domain.ConsentID][]txEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MockClient) Anchor(_ context.Context, event Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNext {
		c.FailNext = false
		return "", fmt.Errorf("ledger anchor: %w", sentinel.ErrUnavailable)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode anchor event: %w", err)
	}
	return c.record(event.ConsentID, event.Status, payload), nil
}

func (c *MockClient) UpdateStatus(_ context.Context, consentID domain.ConsentID, status models.Status) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNext {
		c.FailNext = false
		return "", fmt.Errorf("ledger status update: %w", sentinel.ErrUnavailable)
	}
	// Idempotency: re-submitting the same status returns the existing hash.
	for _, e := range c.entries[consentID] {
		if e.Status == status {
			return e.TxHash, nil
		}
	}
	return c.record(consentID, status, []byte(fmt.Sprintf("%s:%s", consentID, status))), nil
}

func (c *MockClient) record(consentID domain.ConsentID, status models.Status, payload []byte) string {
	txHash := identity.Hash(fmt.Sprintf("%s:%d", payload, len(c.entries[consentID])))
	c.entries[consentID] = append(c.entries[consentID], txEntry{
		Status: status,
		TxHash: txHash,
		At:     c.now().UTC(),
	})
	return txHash
}

// GetProof returns a merkle-style inclusion proof for the consent's latest
// ledger entry. The proof shape mirrors what a real DAG transport returns;
// consumers treat it as opaque.
func (c *MockClient) GetProof(_ context.Context, consentID domain.ConsentID) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.entries[consentID]
	if len(entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	latest := entries[len(entries)-1]
	siblings := make([]string, 0, len(entries)-1)
	for _, e := range entries[:len(entries)-1] {
		siblings = append(siblings, e.TxHash)
	}
	root := latest.TxHash
	for _, s := range siblings {
		root = identity.Hash(root + s)
	}
	proof := map[string]any{
		"txHash":   latest.TxHash,
		"root":     root,
		"siblings": siblings,
		"index":    len(entries) - 1,
	}
	blob, err := json.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("encode merkle proof: %w", err)
	}
	return blob, nil
}
