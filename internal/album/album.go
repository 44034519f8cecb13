// Package album coalesces independently delivered album parts into one batch.
//
// Every arrival restarts the flush timer of its key. When the timer fires the
// batch is detached from the aggregator under the lock and handed off; an
// event arriving after that moment starts a fresh batch under the same key.
package album

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/suggestbot/core/logger"
)

const (
	DefaultLatency = 300 * time.Millisecond
	DefaultLimit   = 3
)

// Options configures an Aggregator.
type Options[E any] struct {
	Latency time.Duration
	// Limit is the largest batch handed to OnFlush.
	Limit int
	// OnFlush receives every batch within the limit, in arrival order.
	OnFlush func(key string, events []E)
	// OnOverLimit receives oversized batches instead of OnFlush.
	OnOverLimit func(key string, events []E)
}

type batch[E any] struct {
	events  []E
	timer   *time.Timer
	gen     uint64
	started time.Time
}

// Aggregator buffers events per key until no new event arrives for Latency.
type Aggregator[E any] struct {
	opts Options[E]

	mu      sync.Mutex
	batches map[string]*batch[E]
	gen     uint64
	closed  bool
	flights sync.WaitGroup
}

// New creates an Aggregator. Zero Latency and Limit take the defaults.
func New[E any](opts Options[E]) *Aggregator[E] {
	if opts.Latency <= 0 {
		opts.Latency = DefaultLatency
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Aggregator[E]{opts: opts, batches: make(map[string]*batch[E])}
}

// Ingest appends ev to the batch of key and restarts its flush timer.
// Events ingested after Close are dropped.
func (a *Aggregator[E]) Ingest(key string, ev E) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	b, ok := a.batches[key]
	if !ok {
		b = &batch[E]{started: time.Now()}
		a.batches[key] = b
	}
	b.events = append(b.events, ev)
	if b.timer != nil {
		b.timer.Stop()
	}
	a.gen++
	gen := a.gen
	b.gen = gen
	b.timer = time.AfterFunc(a.opts.Latency, func() { a.fire(key, gen) })
}

func (a *Aggregator[E]) fire(key string, gen uint64) {
	a.mu.Lock()
	b, ok := a.batches[key]
	if !ok || b.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.batches, key)
	a.flights.Add(1)
	a.mu.Unlock()
	defer a.flights.Done()

	attrs := []slog.Attr{
		slog.String("album_key", key),
		slog.Int("items", len(b.events)),
		slog.Duration("duration", logger.Took(b.started)),
	}
	if len(b.events) > a.opts.Limit {
		logger.Warn(context.Background(), logger.CompAlbum, "album.flushed", append(attrs, slog.String("outcome", "over_limit"))...)
		if a.opts.OnOverLimit != nil {
			a.opts.OnOverLimit(key, b.events)
		}
		return
	}
	logger.Debug(context.Background(), logger.CompAlbum, "album.flushed", append(attrs, slog.String("status", "ok"))...)
	if a.opts.OnFlush != nil {
		a.opts.OnFlush(key, b.events)
	}
}

// Pending reports how many batches are still collecting events.
func (a *Aggregator[E]) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

// Close abandons unflushed batches and waits for running handoffs.
func (a *Aggregator[E]) Close() {
	a.mu.Lock()
	a.closed = true
	for key, b := range a.batches {
		b.timer.Stop()
		delete(a.batches, key)
	}
	a.mu.Unlock()
	a.flights.Wait()
}
