// Package throttle enforces a per-user cooldown between submissions.
package throttle

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/metrics"
)

// Defaults match the historic bot behaviour.
const (
	DefaultWindow   = 5 * time.Minute
	DefaultCapacity = 10_000
)

// Throttle remembers actors for a fixed window. It is advisory: when the
// table is full of live entries, requests pass without being recorded.
type Throttle struct {
	mu       sync.Mutex
	seen     *cache.Cache
	window   time.Duration
	capacity int
	metrics  *metrics.Metrics
}

// New returns a Throttle. Non-positive arguments fall back to the defaults.
func New(window time.Duration, capacity int) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Throttle{
		seen:     cache.New(window, 0),
		window:   window,
		capacity: capacity,
	}
}

// WithMetrics attaches a metrics sink for limited requests.
func (t *Throttle) WithMetrics(m *metrics.Metrics) *Throttle {
	t.metrics = m
	return t
}

// Allow reports whether actorID may proceed and starts its window when it may.
func (t *Throttle) Allow(actorID int64) bool {
	key := strconv.FormatInt(actorID, 10)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, found := t.seen.Get(key); found {
		t.metrics.ObserveThrottled()
		return false
	}
	if t.seen.ItemCount() >= t.capacity {
		t.seen.DeleteExpired()
		if t.seen.ItemCount() >= t.capacity {
			logger.Warn(context.Background(), logger.CompThrottle, "throttle.full",
				slog.String("status", "skip"),
				slog.Int("capacity", t.capacity),
			)
			return true
		}
	}
	t.seen.Set(key, struct{}{}, cache.DefaultExpiration)
	return true
}

// Reset forgets actorID.
func (t *Throttle) Reset(actorID int64) {
	t.seen.Delete(strconv.FormatInt(actorID, 10))
}

// Len reports how many actors are tracked, expired entries included.
func (t *Throttle) Len() int {
	return t.seen.ItemCount()
}
