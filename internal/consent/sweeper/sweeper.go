// Package sweeper runs the periodic expiry sweep. Lazy expiry already flips
// stale records on read; the sweep exists so records nobody reads still reach
// EXPIRED in bounded time.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"consentire/internal/audit"
	"consentire/internal/consent/models"
	"consentire/internal/consent/store"
	"consentire/internal/ledger"
)

var sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "consentire_consent_swept_total",
	Help: "Records flipped to expired by the background sweep",
})

// Auditor matches the engine's audit port.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// PendingEnqueuer matches the engine's reconciler port.
type PendingEnqueuer interface {
	Enqueue(p ledger.Pending)
}

// Sweeper periodically flips GRANTED records past their expiry.
type Sweeper struct {
	store      store.Store
	auditor    Auditor
	reconciler PendingEnqueuer
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Sweeper) { s.auditor = a }
}

func WithReconciler(r PendingEnqueuer) Option {
	return func(s *Sweeper) { s.reconciler = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(st store.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     st,
		logger:    slog.Default(),
		interval:  time.Minute,
		batchSize: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", slog.Any("error", err))
			} else if n > 0 {
				s.logger.InfoContext(ctx, "expiry sweep completed", slog.Int("expired", n))
			}
		}
	}
}

// SweepOnce flips one batch of stale records and returns how many it expired.
// The CAS tolerates races with lazy expiry and concurrent revocation; a lost
// swap just means someone else transitioned the record first.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	stale, err := s.store.ListExpiredGranted(ctx, now, s.batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, record := range stale {
		swapped, err := s.store.UpdateStatus(ctx, record.ID, models.StatusGranted, models.StatusExpired, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "sweep transition failed",
				slog.String("consent_id", record.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		if !swapped {
			continue
		}
		expired++
		sweptTotal.Inc()

		if s.reconciler != nil {
			s.reconciler.Enqueue(ledger.Pending{
				ConsentID: record.ID,
				Status:    models.StatusExpired,
			})
		}
		if s.auditor != nil {
			s.auditor.Record(ctx, audit.Entry{
				ConsentID: record.ID,
				Actor:     record.UserID.String(),
				Action:    models.AuditActionConsentExpired,
				Details: map[string]any{
					"reason": models.AuditReasonSweep,
				},
			})
		}
	}
	return expired, nil
}
