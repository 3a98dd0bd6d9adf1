// Package persistence implements the Persistence Layer (PL, spec.md
// §4.12): one relational store (internal/database's sqlite wrapper) behind
// the table list in spec.md §4.12/§6, with a non-blocking hot-path writer
// so signal inserts, cycle updates, and score updates never stall the
// engine that produced them (spec.md "PL offers an asynchronous write
// channel with a bounded buffer; overflow drops the oldest non-critical
// records and logs a warning, never blocking the engine").
//
// Grounded on aristath-sentinel/internal/database's repository-over-sql.DB
// style; the bounded-queue-with-drop shape is new (no example repo in the
// pack carries a write-coalescing queue), built directly from spec.md §4.12
// and §5's non-blocking-hot-path requirement.
package persistence

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// defaultQueueLimit bounds how many pending writes the async writer holds
// before it starts dropping non-critical jobs (spec.md §4.12).
const defaultQueueLimit = 4096

type job struct {
	label    string
	critical bool
	run      func(ctx context.Context) error
}

// Writer is PL's single dedicated background drainer: every hot-path write
// is Submit-ted here and applied by one goroutine running Run, so callers
// never block on a database round trip (spec.md §5: "PL hot-path writes:
// lock-free channel; a dedicated writer task drains it").
type Writer struct {
	mu       sync.Mutex
	queue    []job
	limit    int
	notify   chan struct{}
	dropped  int64
	log      zerolog.Logger
}

// NewWriter creates a Writer with the given queue bound (0 uses the
// default).
func NewWriter(limit int, log zerolog.Logger) *Writer {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	return &Writer{
		limit:  limit,
		notify: make(chan struct{}, 1),
		log:    log.With().Str("component", "persistence_writer").Logger(),
	}
}

// Submit enqueues fn for asynchronous execution. critical marks a write
// that must never be silently dropped (money/task state); non-critical
// writes (signal inserts, log lines, score updates) are the ones sacrificed
// first when the queue is full.
func (w *Writer) Submit(critical bool, label string, fn func(ctx context.Context) error) {
	w.mu.Lock()
	if len(w.queue) >= w.limit {
		if idx := w.findDroppable(); idx >= 0 {
			dropped := w.queue[idx]
			w.queue = append(w.queue[:idx], w.queue[idx+1:]...)
			w.dropped++
			w.log.Warn().Str("dropped_label", dropped.label).Int64("total_dropped", w.dropped).Msg("persistence queue full, dropped oldest non-critical write")
		} else {
			w.log.Error().Str("label", label).Msg("persistence queue full of critical writes, growing past configured bound")
		}
	}
	w.queue = append(w.queue, job{label: label, critical: critical, run: fn})
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// findDroppable returns the index of the oldest non-critical queued job,
// or -1 if every queued job is critical.
func (w *Writer) findDroppable() int {
	for i, j := range w.queue {
		if !j.critical {
			return i
		}
	}
	return -1
}

func (w *Writer) pop() (job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return job{}, false
	}
	j := w.queue[0]
	w.queue = w.queue[1:]
	return j, true
}

// Run drains the queue until ctx is cancelled, then flushes whatever
// remains before returning (spec.md §5: cancellation "flushes append-only
// writes, and returns").
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drainAll(context.Background())
			return
		case <-w.notify:
			w.drainAll(ctx)
		}
	}
}

func (w *Writer) drainAll(ctx context.Context) {
	for {
		j, ok := w.pop()
		if !ok {
			return
		}
		if err := j.run(ctx); err != nil {
			w.log.Error().Err(err).Str("label", j.label).Bool("critical", j.critical).Msg("persistence write failed")
		}
	}
}

// Dropped reports how many non-critical writes have been sacrificed to
// queue pressure since startup, surfaced by CP diagnostics.
func (w *Writer) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// QueueLen reports the current pending-write count, surfaced by CP/health.
func (w *Writer) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
