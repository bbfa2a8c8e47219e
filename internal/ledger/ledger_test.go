package ledger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentire/internal/consent/models"
	"consentire/internal/sentinel"
	"consentire/pkg/domain"
	"consentire/pkg/identity"
)

func testEvent(consentID domain.ConsentID) Event {
	return Event{
		ConsentID:      consentID,
		UserIDHash:     identity.Hash("4fad723c75e2e0972ce3a680b0e93d5bd4b6c5ec25e16ea94f19b0a08bccb99d"),
		ControllerHash: identity.ControllerHash("acme"),
		PurposeHash:    identity.PurposeHash("marketing"),
		Status:         models.StatusGranted,
		GrantedAt:      time.Unix(1700000000, 0).UTC(),
	}
}

func TestAnchorReturnsDigestHash(t *testing.T) {
	client := NewMockClient()
	txHash, err := client.Anchor(context.Background(), testEvent("c1"))
	require.NoError(t, err)
	assert.True(t, domain.IsHashHex(txHash))
}

func TestUpdateStatusIdempotent(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	first, err := client.UpdateStatus(ctx, "c1", models.StatusRevoked)
	require.NoError(t, err)
	second, err := client.UpdateStatus(ctx, "c1", models.StatusRevoked)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same consent/status pair must yield the same tx hash")
}

func TestGetProof(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	_, err := client.GetProof(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	txHash, err := client.Anchor(ctx, testEvent("c1"))
	require.NoError(t, err)
	_, err = client.UpdateStatus(ctx, "c1", models.StatusRevoked)
	require.NoError(t, err)

	blob, err := client.GetProof(ctx, "c1")
	require.NoError(t, err)

	var proof struct {
		TxHash   string   `json:"txHash"`
		Root     string   `json:"root"`
		Siblings []string `json:"siblings"`
	}
	require.NoError(t, json.Unmarshal(blob, &proof))
	assert.NotEqual(t, txHash, proof.TxHash, "proof covers the latest entry")
	assert.Len(t, proof.Siblings, 1)
	assert.Equal(t, txHash, proof.Siblings[0])
}

type recordingWriter struct {
	attached chan string
}

func (w *recordingWriter) AttachLedgerTxHash(_ context.Context, _ domain.ConsentID, txHash string) error {
	w.attached <- txHash
	return nil
}

func TestReconcilerAttachesAfterRetry(t *testing.T) {
	client := NewMockClient()
	client.FailNext = true
	writer := &recordingWriter{attached: make(chan string, 1)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewReconciler(client, writer, logger, WithBackoff(time.Millisecond, 4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = r.Run(ctx)
	}()

	event := testEvent("c1")
	r.Enqueue(Pending{ConsentID: "c1", Event: &event})

	select {
	case txHash := <-writer.attached:
		assert.True(t, domain.IsHashHex(txHash))
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler never attached the tx hash")
	}
}

func TestReconcilerStatusUpdatePath(t *testing.T) {
	client := NewMockClient()
	writer := &recordingWriter{attached: make(chan string, 1)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewReconciler(client, writer, logger, WithBackoff(time.Millisecond, 4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = r.Run(ctx)
	}()

	r.Enqueue(Pending{ConsentID: "c2", Status: models.StatusRevoked})

	select {
	case txHash := <-writer.attached:
		direct, err := client.UpdateStatus(context.Background(), "c2", models.StatusRevoked)
		require.NoError(t, err)
		assert.Equal(t, direct, txHash, "retry must be idempotent with the original submission")
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler never attached the tx hash")
	}
}
