// Package workerqueue implements a generic bounded FIFO coupled with a fixed
// worker pool. It is the shared backpressure primitive behind ColumnarSink,
// CacheSink, and every per-exchange StreamIngest client: enqueue must never
// block the caller, so a full queue drops the item and counts it instead.
package workerqueue

import (
	"context"
	"sync"
	"time"

	"jax-feed/libs/observability"
	clockutil "jax-feed/libs/testing"
)

// Outcome is the result of a single Enqueue call.
type Outcome int

const (
	Queued Outcome = iota
	Dropped
)

// DropThresholds configures the per-queue log-level escalation described for
// a queue's drop-rate window: below Warn, drops are silent (debug); at or
// above Warn but below Panic, a warning is logged; at or above Panic, an
// error ("panic") is logged. A negative Panic disables the error tier entirely
// (the cache queue's "panic: never" case) — use PanicDisabled. A Warn of 0
// logs every drop at least as a warning.
type DropThresholds struct {
	WarnPerSec  float64
	PanicPerSec float64
}

// PanicDisabled marks a queue whose drop rate should never escalate past warn.
const PanicDisabled = -1

// Handler processes one dequeued item. A Handler must not panic the worker
// goroutine for ordinary processing errors — return the error and it will be
// logged and swallowed.
type Handler[T any] func(ctx context.Context, item T) error

type entry[T any] struct {
	item     T
	sentinel bool
}

// Queue is a bounded channel plus a fixed pool of workers draining it.
type Queue[T any] struct {
	name       string
	ch         chan entry[T]
	handler    Handler[T]
	workers    int
	thresholds DropThresholds
	closeWait  time.Duration

	wg sync.WaitGroup

	metrics *observability.FeedMetrics
	clock   clockutil.Clock

	mu         sync.Mutex
	dropWindow []time.Time
	totalDrops int64
	closed     bool
}

// Config parameterizes a new Queue.
type Config struct {
	Name       string
	Size       int
	Workers    int
	Thresholds DropThresholds
	// CloseTimeout bounds how long Close() waits for workers to drain their
	// tails after sentinels are enqueued before cancelling them.
	CloseTimeout time.Duration
	// Metrics, if set, receives a QueueDrops increment per dropped item and
	// a QueueDepth sample per Enqueue call, both labeled by Name. Optional.
	Metrics *observability.FeedMetrics
	// Clock supplies the time used by the drop-rate window. Defaults to
	// clockutil.SystemClock; tests inject a ManualClock to exercise the
	// 60s window without sleeping.
	Clock clockutil.Clock
}

// New builds a Queue and starts its worker pool. Workers run until Close.
func New[T any](cfg Config, handler Handler[T]) *Queue[T] {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockutil.SystemClock{}
	}
	q := &Queue[T]{
		name:       cfg.Name,
		ch:         make(chan entry[T], cfg.Size),
		handler:    handler,
		workers:    cfg.Workers,
		thresholds: cfg.Thresholds,
		closeWait:  cfg.CloseTimeout,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.runWorker()
	}
	return q
}

// Enqueue attempts a single non-blocking insert. It never blocks the caller:
// if the queue is at capacity the item is dropped and counted.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) Outcome {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return Dropped
	}

	select {
	case q.ch <- entry[T]{item: item}:
		if q.metrics != nil {
			q.metrics.QueueDepth.Set(float64(len(q.ch)), "queue", q.name)
		}
		return Queued
	default:
		q.recordDrop(ctx)
		return Dropped
	}
}

// Depth reports the number of items currently waiting in the queue.
func (q *Queue[T]) Depth() int {
	return len(q.ch)
}

// TotalDrops reports the cumulative number of dropped items since creation.
func (q *Queue[T]) TotalDrops() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalDrops
}

func (q *Queue[T]) recordDrop(ctx context.Context) {
	now := q.clock.Now()

	q.mu.Lock()
	q.totalDrops++
	q.dropWindow = append(q.dropWindow, now)
	cutoff := now.Add(-60 * time.Second)
	kept := q.dropWindow[:0]
	for _, t := range q.dropWindow {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	q.dropWindow = kept
	rate := float64(len(q.dropWindow)) / 60.0
	total := q.totalDrops
	q.mu.Unlock()

	level := "debug"
	switch {
	case q.thresholds.PanicPerSec >= 0 && rate >= q.thresholds.PanicPerSec:
		level = "error"
	case rate >= q.thresholds.WarnPerSec:
		level = "warn"
	}
	if q.metrics != nil {
		q.metrics.QueueDrops.Inc("queue", q.name)
	}

	if level == "debug" {
		return
	}
	observability.LogDrop(ctx, level, q.name, rate, total)
}

func (q *Queue[T]) runWorker() {
	defer q.wg.Done()
	ctx := context.Background()
	for e := range q.ch {
		if e.sentinel {
			return
		}
		q.invoke(ctx, e.item)
	}
}

func (q *Queue[T]) invoke(ctx context.Context, item T) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogEvent(ctx, "error", "worker_handler_panic", map[string]any{
				"queue": q.name,
				"panic": r,
			})
		}
	}()
	if err := q.handler(ctx, item); err != nil {
		observability.LogEvent(ctx, "error", "worker_handler_error", map[string]any{
			"queue": q.name,
			"error": err.Error(),
		})
	}
}

// Close places one sentinel per worker, waits up to the configured timeout
// for workers to drain their tails, and returns once all workers have
// stopped or the timeout elapses. Enqueue after Close begins always drops.
// Sentinels travel through the same channel as ordinary items, so every
// item queued before Close is guaranteed to be processed first.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.ch <- entry[T]{sentinel: true}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(q.closeWait):
		observability.LogEvent(context.Background(), "error", "worker_queue_close_timeout", map[string]any{
			"queue": q.name,
		})
	}
}
