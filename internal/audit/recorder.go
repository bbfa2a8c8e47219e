package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var auditDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "consentire_audit_entries_dropped_total",
	Help: "Audit entries dropped because the async buffer was full",
})

// Recorder captures structured audit entries. Appends are best-effort relative
// to the state transition that triggered them: a failure to persist is logged
// and never unwinds the caller's outcome.
type Recorder struct {
	store   Store
	entries chan Entry
	wg      sync.WaitGroup
	logger  *slog.Logger
	async   bool
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Entries are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) RecorderOption {
	return func(r *Recorder) {
		if size > 0 {
			r.entries = make(chan Entry, size)
			r.async = true
		}
	}
}

// WithRecorderLogger sets a logger for async error reporting.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.async {
		r.wg.Add(1)
		go r.drain()
	}
	return r
}

// drain runs in a goroutine and persists entries from the channel.
func (r *Recorder) drain() {
	defer r.wg.Done()
	for entry := range r.entries {
		if err := r.store.Append(context.Background(), entry); err != nil {
			r.logError(err, entry)
		}
	}
}

// Close shuts down the async recorder and waits for pending entries to drain.
func (r *Recorder) Close() {
	if r.async && r.entries != nil {
		close(r.entries)
		r.wg.Wait()
	}
}

// Record appends an audit entry. It never returns an error the caller must act
// on: persistence failures are swallowed and reported through the logger and
// the dropped-entries counter.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if r.async {
		// Non-blocking send; drop the entry if the buffer is full so the hot
		// path never stalls on audit IO.
		select {
		case r.entries <- entry:
		default:
			auditDropped.Inc()
			if r.logger != nil {
				r.logger.Warn("audit buffer full, entry dropped",
					"action", entry.Action,
					"consent_id", entry.ConsentID,
				)
			}
		}
		return
	}
	if err := r.store.Append(ctx, entry); err != nil {
		r.logError(err, entry)
	}
}

func (r *Recorder) logError(err error, entry Entry) {
	if r.logger != nil {
		r.logger.Error("failed to persist audit entry",
			"error", err,
			"action", entry.Action,
			"consent_id", entry.ConsentID,
		)
	}
}
