package store

import (
	"context"
	"time"

	"consentire/internal/consent/models"
	"consentire/pkg/domain"
)

// Store defines the persistence interface for consent records.
//
// Error Contract:
//   - GetByKey and GetByID return sentinel.ErrNotFound when no record exists
//   - InsertIfAbsentGranted returns false (no error) when a GRANTED record
//     already occupies the key
//   - UpdateStatus returns false (no error) on expected-status mismatch
//     (optimistic concurrency); the caller re-reads to learn the actual state
//   - Other failures are wrapped infrastructure errors
type Store interface {
	// GetByKey returns the most recent record for the
	// (userID, controllerHash, purposeHash) key.
	GetByKey(ctx context.Context, key models.Key) (*models.Record, error)
	GetByID(ctx context.Context, id domain.ConsentID) (*models.Record, error)
	// InsertIfAbsentGranted persists the record unless another record for the
	// same key currently has status GRANTED. The check-then-insert is atomic.
	InsertIfAbsentGranted(ctx context.Context, record *models.Record) (bool, error)
	// UpdateStatus transitions a record from expected to next, recording the
	// transition time (revoked_at for REVOKED). Compare-and-swap: returns
	// false when the persisted status no longer matches expected.
	UpdateStatus(ctx context.Context, id domain.ConsentID, expected, next models.Status, at time.Time) (bool, error)
	// AttachLedgerTxHash records the anchor confirmation for a consent.
	// Idempotent: attaching the same hash twice is a no-op.
	AttachLedgerTxHash(ctx context.Context, id domain.ConsentID, txHash string) error
	// ListByUser returns the user's records, optionally filtered by persisted
	// status, most-recently-granted first.
	ListByUser(ctx context.Context, userID domain.UserID, status *models.Status) ([]*models.Record, error)
	// ListExpiredGranted returns records whose persisted status is GRANTED but
	// whose expiry has passed, for the housekeeping sweep.
	ListExpiredGranted(ctx context.Context, now time.Time, limit int) ([]*models.Record, error)
	// ListByController returns every record anchored to a controller,
	// most-recently-granted first, for compliance reporting.
	ListByController(ctx context.Context, controllerHash domain.ControllerHash) ([]*models.Record, error)
}
