// Package scheduler implements the per-work-item scheduler (C8): a keyed,
// serial-per-key, bounded-parallel-across-keys queue with capped
// exponential backoff retry. Grounded on the teacher's
// internal/dispatcher, generalized from "one task per PR" to the two
// work-item kinds of spec.md §3 (PR checks and commit-comment commands).
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cexll/reviewbot/internal/boterrors"
	"github.com/cexll/reviewbot/internal/metrics"
)

// ErrQueueClosed indicates the scheduler has been shut down.
var ErrQueueClosed = errors.New("scheduler: queue is closed")

// ErrQueueFull indicates the scheduler cannot accept new work right now.
var ErrQueueFull = errors.New("scheduler: queue is full")

// WorkItem is one unit of scheduled work, keyed for coalescing and serial
// execution. Two items with the same Key() coalesce per spec.md §4.1.
type WorkItem interface {
	Key() string
}

// Runner executes one work item.
type Runner interface {
	Run(ctx context.Context, item WorkItem) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, item WorkItem) error

func (f RunnerFunc) Run(ctx context.Context, item WorkItem) error { return f(ctx, item) }

// Config controls the scheduler's parallelism and retry behaviour.
type Config struct {
	Workers           int
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	ItemTimeout       time.Duration
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 15 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 10 * time.Minute
	}
	return cfg
}

// Scheduler runs WorkItems, one at a time per key, across a bounded worker
// pool, retrying failed items with capped exponential backoff.
type Scheduler struct {
	runner Runner
	cfg    Config
	log    *logrus.Entry

	queue chan *queued

	keyed *keyedQueue

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	onExhausted func(item WorkItem, err error)
}

type queued struct {
	item    WorkItem
	attempt int
}

// New creates a Scheduler and starts its worker pool.
func New(runner Runner, cfg Config, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Scheduler{
		runner: runner,
		cfg:    normalizeConfig(cfg),
		log:    log,
		queue:  make(chan *queued, normalizeConfig(cfg).QueueSize),
		keyed:  newKeyedQueue(),
		stopCh: make(chan struct{}),
	}
	s.startWorkers()
	return s
}

// OnExhausted registers a callback invoked when a work item's retry budget
// is exhausted, so the operator can surface the failure (log + metric).
func (s *Scheduler) OnExhausted(fn func(item WorkItem, err error)) {
	s.onExhausted = fn
}

func (s *Scheduler) startWorkers() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Enqueue submits item for execution. If an item with the same key is
// already queued or running, the new arrival is held as that key's single
// pending item (replacing any earlier pending arrival) and is queued once
// the current item finishes. An item already in the queue is not removed
// or replaced; it still runs before the pending arrival.
func (s *Scheduler) Enqueue(item WorkItem) error {
	if item == nil {
		return errors.New("scheduler: item is nil")
	}

	select {
	case <-s.stopCh:
		return ErrQueueClosed
	default:
	}

	if !s.keyed.offer(item.Key()) {
		// An item for this key is already queued or running; hold this
		// arrival as the key's pending item until that run finishes.
		s.keyed.supersede(item.Key(), item)
		return nil
	}

	select {
	case s.queue <- &queued{item: item, attempt: 1}:
		metrics.SetQueueDepth(len(s.queue))
		return nil
	default:
		s.keyed.release(item.Key())
		return ErrQueueFull
	}
}

// itemKind derives the metrics label from a WorkItem's key, whose
// producers (workitem.PRItem/CommitItem) always format as "<kind>:...".
func itemKind(item WorkItem) string {
	key := item.Key()
	if idx := strings.Index(key, ":"); idx > 0 {
		return key[:idx]
	}
	return "unknown"
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case q, ok := <-s.queue:
			if !ok {
				return
			}
			s.process(q)
		}
	}
}

func (s *Scheduler) process(q *queued) {
	key := q.item.Key()
	entry := s.log.WithField("key", key).WithField("attempt", q.attempt)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ItemTimeout)
	err := s.runner.Run(ctx, q.item)
	cancel()

	kind := itemKind(q.item)
	if err != nil {
		entry.WithError(err).Warn("work item failed")
		metrics.ObserveWorkItemAttempt(kind, metrics.OutcomeFailure)
		s.handleFailure(q, err)
	} else {
		entry.Debug("work item succeeded")
		metrics.ObserveWorkItemAttempt(kind, metrics.OutcomeSuccess)
	}

	// Release the key and pick up any superseding arrival that coalesced
	// while this item was running.
	if next, ok := s.keyed.finish(key); ok {
		s.requeueNow(next)
	}
}

func (s *Scheduler) requeueNow(item WorkItem) {
	if !s.keyed.offer(item.Key()) {
		s.keyed.supersede(item.Key(), item)
		return
	}
	select {
	case s.queue <- &queued{item: item, attempt: 1}:
	case <-s.stopCh:
		s.keyed.release(item.Key())
	}
}

func (s *Scheduler) handleFailure(q *queued, err error) {
	if !boterrors.IsRetryable(err) {
		// Semantic/user-input/fatal failures already produced their own
		// reply; no further attempts.
		return
	}

	if q.attempt >= s.cfg.MaxAttempts {
		s.log.WithField("key", q.item.Key()).WithError(err).
			Error("work item exceeded retry budget; will re-enqueue on next tick")
		metrics.ObserveRetriesExhausted(itemKind(q.item))
		if s.onExhausted != nil {
			s.onExhausted(q.item, err)
		}
		return
	}

	metrics.ObserveWorkItemAttempt(itemKind(q.item), metrics.OutcomeRetried)
	delay := backoffDuration(s.cfg, q.attempt)
	go func(next *queued) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if !s.keyed.offer(next.item.Key()) {
				s.keyed.supersede(next.item.Key(), next.item)
				return
			}
			select {
			case s.queue <- next:
			case <-s.stopCh:
				s.keyed.release(next.item.Key())
			}
		case <-s.stopCh:
		}
	}(&queued{item: q.item, attempt: q.attempt + 1})
}

func backoffDuration(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= cfg.BackoffMultiplier
		if backoff >= float64(cfg.MaxBackoff) {
			return cfg.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// Shutdown stops accepting new work and waits for in-flight items to
// finish, up to ctx's deadline. A superseded-but-running item is allowed
// to finish; its effects must be idempotent against newer state.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.once.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}
