package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentire/internal/audit"
	"consentire/internal/consent/models"
	"consentire/internal/consent/store"
	"consentire/pkg/domain"
	"consentire/pkg/identity"
)

func seedRecord(t *testing.T, st store.Store, purpose string, grantedAt time.Time, expiresAt *time.Time) *models.Record {
	t.Helper()

	userID := identity.UserID("alice@example.com", "pk_alice")
	orgID := domain.OrgID("acme")
	record, err := models.NewRecord(
		identity.ConsentID(userID, orgID, purpose, grantedAt.UnixMilli()),
		userID,
		domain.ControllerRef("ref-acme"),
		identity.ControllerHash(orgID),
		purpose,
		identity.PurposeHash(purpose),
		nil,
		models.BasisConsent,
		grantedAt,
		expiresAt,
	)
	require.NoError(t, err)

	inserted, err := st.InsertIfAbsentGranted(context.Background(), record)
	require.NoError(t, err)
	require.True(t, inserted)
	return record
}

func TestSweepOnceExpiresStaleRecords(t *testing.T) {
	ctx := context.Background()
	st := store.New()
	auditStore := audit.NewInMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	stale := seedRecord(t, st, "marketing", now.Add(-2*time.Hour), &past)

	future := now.Add(time.Hour)
	fresh := seedRecord(t, st, "analytics", now.Add(-time.Minute), &future)
	forever := seedRecord(t, st, "support", now.Add(-time.Minute), nil)

	sw := New(st,
		WithAuditor(audit.NewRecorder(auditStore)),
		WithClock(func() time.Time { return now }),
	)

	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	for _, id := range []domain.ConsentID{fresh.ID, forever.ID} {
		got, err := st.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusGranted, got.Status)
	}

	entries, err := auditStore.ListByConsent(ctx, stale.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionConsentExpired, entries[0].Action)
	assert.Equal(t, models.AuditReasonSweep, entries[0].Details["reason"])
}

func TestSweepOnceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	seedRecord(t, st, "marketing", now.Add(-2*time.Hour), &past)

	sw := New(st, WithClock(func() time.Time { return now }))

	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.New()
	sw := New(st, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
