package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"consentire/internal/consent/models"
	"consentire/pkg/domain"
)

var (
	reconcilerPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "consentire_ledger_pending_anchors",
		Help: "Consent records waiting for a ledger transaction hash",
	})
	reconcilerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consentire_ledger_anchor_retries_total",
		Help: "Total ledger anchor retry attempts",
	})
	reconcilerAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consentire_ledger_anchors_abandoned_total",
		Help: "Pending anchors dropped after exhausting retries",
	})
)

// TxHashWriter attaches a confirmed transaction hash to a consent record,
// keyed by consent ID. The consent store satisfies this.
type TxHashWriter interface {
	AttachLedgerTxHash(ctx context.Context, id domain.ConsentID, txHash string) error
}

// Pending is a ledger write that did not complete inline. Either Event is set
// (initial anchoring) or Status is set (status update); retries are idempotent
// on the ledger side.
type Pending struct {
	ConsentID domain.ConsentID
	Event     *Event
	Status    models.Status
	attempts  int
}

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 8
	defaultBaseBackoff = 2 * time.Second
)

// Reconciler drains pending ledger writes in the background, attaching
// transaction hashes to records once the anchor confirms. The local state
// transition has already committed by the time anything lands here; a record
// being GRANTED with an empty tx hash is expected, visible partial state.
type Reconciler struct {
	anchor      Anchor
	writer      TxHashWriter
	logger      *slog.Logger
	queue       chan Pending
	maxAttempts int
	baseBackoff time.Duration
}

// ReconcilerOption configures the Reconciler.
type ReconcilerOption func(*Reconciler)

// WithBackoff overrides retry pacing, mainly to keep tests fast.
func WithBackoff(base time.Duration, maxAttempts int) ReconcilerOption {
	return func(r *Reconciler) {
		if base > 0 {
			r.baseBackoff = base
		}
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
	}
}

// WithQueueSize overrides the pending queue capacity.
func WithQueueSize(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.queue = make(chan Pending, n)
		}
	}
}

func NewReconciler(anchor Anchor, writer TxHashWriter, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		anchor:      anchor,
		writer:      writer,
		logger:      logger,
		queue:       make(chan Pending, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue registers a pending ledger write. Non-blocking: when the queue is
// full the item is dropped and reported; the record simply keeps its empty tx
// hash until an operator replays it.
func (r *Reconciler) Enqueue(p Pending) {
	select {
	case r.queue <- p:
		reconcilerPending.Inc()
	default:
		reconcilerAbandoned.Inc()
		r.logger.Error("ledger reconcile queue full, dropping pending anchor",
			"consent_id", p.ConsentID,
		)
	}
}

// Run processes pending writes until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-r.queue:
			reconcilerPending.Dec()
			r.process(ctx, p)
		}
	}
}

func (r *Reconciler) process(ctx context.Context, p Pending) {
	txHash, err := r.submit(ctx, p)
	if err == nil {
		if err := r.writer.AttachLedgerTxHash(ctx, p.ConsentID, txHash); err != nil {
			r.logger.Error("failed to attach ledger tx hash",
				"consent_id", p.ConsentID,
				"error", err,
			)
		}
		return
	}

	p.attempts++
	if p.attempts >= r.maxAttempts {
		reconcilerAbandoned.Inc()
		r.logger.Error("abandoning ledger anchor after retries",
			"consent_id", p.ConsentID,
			"attempts", p.attempts,
			"error", err,
		)
		return
	}

	reconcilerRetries.Inc()
	backoff := r.baseBackoff * time.Duration(1<<(p.attempts-1))
	r.logger.Warn("ledger anchor failed, retrying",
		"consent_id", p.ConsentID,
		"attempt", p.attempts,
		"backoff", backoff,
		"error", err,
	)

	// Requeue after backoff without blocking the drain loop.
	timer := time.AfterFunc(backoff, func() {
		r.Enqueue(p)
	})
	go func() {
		<-ctx.Done()
		timer.Stop()
	}()
}

func (r *Reconciler) submit(ctx context.Context, p Pending) (string, error) {
	if p.Event != nil {
		return r.anchor.Anchor(ctx, *p.Event)
	}
	return r.anchor.UpdateStatus(ctx, p.ConsentID, p.Status)
}
