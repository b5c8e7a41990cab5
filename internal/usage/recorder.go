// Package usage records accounting rows for completed requests. Recording
// is fire-and-forget: enqueueing never blocks the response path, and any
// failure inside the recorder is logged and swallowed. A billing hiccup
// must never be visible to the API caller.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/routefabric/cluster-gateway/internal/types"
)

// Ledger is the append-only collaborator usage records go to.
type Ledger interface {
	InsertUsage(ctx context.Context, rec types.UsageRecord) error
}

type Recorder struct {
	ledger Ledger
	queue  chan types.UsageRecord
	logger *slog.Logger

	dropped   func() // telemetry hook, optional
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder starts the recorder's worker goroutine. queueSize bounds the
// backlog; when full, records are dropped and logged rather than blocking.
func NewRecorder(ledger Ledger, queueSize int, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		ledger: ledger,
		queue:  make(chan types.UsageRecord, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// OnDrop registers a callback fired when a record is dropped (queue full).
func (r *Recorder) OnDrop(fn func()) { r.dropped = fn }

// Record enqueues one usage record without blocking. Missing ID/timestamp
// are filled in. Records survive caller disconnects: the work downstream
// was performed whether or not anyone stayed to watch.
//
// Safe to call after Close: handlers can outlive the server's shutdown
// deadline, and their late records are dropped and logged rather than
// panicking on the closed queue.
func (r *Recorder) Record(rec types.UsageRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("usage recorder closed, dropping record",
			"request_id", rec.RequestID, "project_id", rec.ProjectID)
		if r.dropped != nil {
			r.dropped()
		}
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("usage queue full, dropping record",
			"request_id", rec.RequestID, "project_id", rec.ProjectID)
		if r.dropped != nil {
			r.dropped()
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		// Detached from any request context; bounded on its own.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.ledger.InsertUsage(ctx, rec); err != nil {
			r.logger.Error("usage record write failed",
				"request_id", rec.RequestID, "project_id", rec.ProjectID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting records and drains the backlog, bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		// Taking the write lock waits out any Record holding the read
		// lock, so no send can race the close.
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.queue)
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth reports the current backlog size for telemetry.
func (r *Recorder) Depth() int { return len(r.queue) }
