// Package expiry removes mirrored suggestions the moderator never acted on.
package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/metrics"
	"github.com/m3rciful/suggestbot/internal/registry"
)

const fireTimeout = 30 * time.Second

// Extractor consumes the rows of a suggestion.
type Extractor interface {
	Extract(ctx context.Context, id int64) ([]registry.Row, bool)
}

// Deleter removes messages from the moderator chat.
type Deleter interface {
	DeleteMessages(ctx context.Context, chatID int64, ids []int) error
}

// Options configures a Scheduler.
type Options struct {
	Registry Extractor
	Gateway  Deleter
	// ChatID is the moderator chat holding the mirrored copies.
	ChatID    int64
	Retention time.Duration
	Metrics   *metrics.Metrics
}

type task struct {
	suggestionID int64
	mirroredIDs  []int
	runAt        time.Time
	timer        *time.Timer
}

// Scheduler owns one-shot retention tasks. Tasks are kept in memory only.
type Scheduler struct {
	opts Options

	mu      sync.Mutex
	tasks   map[uuid.UUID]*task
	closed  bool
	flights sync.WaitGroup
}

// Handle identifies a scheduled task.
type Handle struct {
	id uuid.UUID
	s  *Scheduler
}

// ID returns the task identifier used in logs.
func (h Handle) ID() string { return h.id.String() }

// Stop cancels the task and reports whether it was still pending.
func (h Handle) Stop() bool {
	if h.s == nil {
		return false
	}
	return h.s.cancel(h.id)
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	return &Scheduler{opts: opts, tasks: make(map[uuid.UUID]*task)}
}

// RunAt returns when a suggestion accepted at now expires.
func (s *Scheduler) RunAt(now time.Time) time.Time {
	return now.Add(s.opts.Retention)
}

// Schedule registers the retention task of a suggestion.
// Scheduling after Close returns a Handle whose Stop reports false.
func (s *Scheduler) Schedule(suggestionID int64, mirroredIDs []int, runAt time.Time) Handle {
	id := uuid.New()
	t := &task{
		suggestionID: suggestionID,
		mirroredIDs:  append([]int(nil), mirroredIDs...),
		runAt:        runAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Handle{id: id}
	}
	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}
	t.timer = time.AfterFunc(delay, func() { s.fire(id) })
	s.tasks[id] = t
	s.opts.Metrics.SetPendingExpiry(len(s.tasks))

	logger.Debug(logger.WithSuggestion(context.Background(), suggestionID), logger.CompExpiry, "expiry.scheduled",
		slog.String("task_id", id.String()),
		slog.Time("run_at", runAt),
		slog.Int("items", len(mirroredIDs)),
	)
	return Handle{id: id, s: s}
}

func (s *Scheduler) cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, id)
	s.opts.Metrics.SetPendingExpiry(len(s.tasks))
	return true
}

func (s *Scheduler) fire(id uuid.UUID) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, id)
	s.opts.Metrics.SetPendingExpiry(len(s.tasks))
	s.flights.Add(1)
	s.mu.Unlock()
	defer s.flights.Done()

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()
	ctx = logger.WithSuggestion(ctx, t.suggestionID)
	start := time.Now()

	rows, found := s.opts.Registry.Extract(ctx, t.suggestionID)
	if !found {
		s.opts.Metrics.ObserveExpiry("noop")
		logger.Debug(ctx, logger.CompExpiry, "expiry.fired",
			slog.String("status", "skip"),
			slog.String("task_id", id.String()),
		)
		return
	}

	ids := messageIDs(t.mirroredIDs, rows)
	err := s.opts.Gateway.DeleteMessages(ctx, s.opts.ChatID, ids)
	attrs := []slog.Attr{
		slog.String("outcome", "expired"),
		slog.String("task_id", id.String()),
		slog.Int("items", len(ids)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		s.opts.Metrics.ObserveExpiry("partial")
		logger.Warn(ctx, logger.CompExpiry, "expiry.fired", append(attrs, logger.Err(err))...)
		return
	}
	s.opts.Metrics.ObserveExpiry("expired")
	logger.Info(ctx, logger.CompExpiry, "expiry.fired", attrs...)
}

// messageIDs merges the ids recorded at schedule time with the rows' ids and
// the decision-menu message, without duplicates.
func messageIDs(recorded []int, rows []registry.Row) []int {
	seen := make(map[int]struct{}, len(recorded)+len(rows)+1)
	out := make([]int, 0, len(recorded)+len(rows)+1)
	add := func(id int) {
		if id == 0 {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range recorded {
		add(id)
	}
	for _, r := range rows {
		add(r.MirroredID)
	}
	if len(rows) > 0 {
		add(rows[0].HelpMessageID)
	}
	return out
}

// Pending reports how many tasks have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close stops every pending task and waits for running ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, id)
	}
	s.opts.Metrics.SetPendingExpiry(0)
	s.mu.Unlock()
	s.flights.Wait()
}
