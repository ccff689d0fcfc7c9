// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package batchprocessor // import "go.opentelemetry.io/mobile/processor/batchprocessor"

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/internal/obsreport"
	"go.opentelemetry.io/mobile/internal/runstate"
	"go.opentelemetry.io/mobile/telemetry"
)

// Sink receives finished batches. Handing a batch to the sink transfers
// ownership of the slice; the scheduler keeps no reference to it.
type Sink[T any] interface {
	ConsumeBatch(ctx context.Context, items []T) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc[T any] func(ctx context.Context, items []T) error

// ConsumeBatch implements Sink.
func (f SinkFunc[T]) ConsumeBatch(ctx context.Context, items []T) error {
	return f(ctx, items)
}

// Settings carries the ambient dependencies of a Scheduler.
type Settings struct {
	Kind     telemetry.Kind
	Logger   *zap.Logger
	Recorder *obsreport.Recorder
}

// Option is an option to Scheduler.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the clock used to compute batch ages.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type opKind int

const (
	opAdd opKind = iota
	opRenew
	opDeadline
	opBarrier
)

type op[T telemetry.Item] struct {
	kind opKind
	item T
	seed []T
	gen  uint64
	done chan struct{}
}

// Scheduler owns the current batch of one telemetry kind and hands closed
// batches to a sink.
//
// Batches are sent out when any of the following happens:
// - the batch reaches Limits.MaxItems
// - the deadline timer fires, Limits.MaxAge after the oldest item
// - ForceEndCurrentBatch or RenewBatch is called
// - the scheduler shuts down
//
// All batch mutations happen on a single worker goroutine. Callers enqueue
// operations on an unbounded FIFO, so Add never blocks and items reach the
// batch in the order the queue observed them.
type Scheduler[T telemetry.Item] struct {
	kind     string
	logger   *zap.Logger
	recorder *obsreport.Recorder
	sink     Sink[T]
	now      func() time.Time

	// mu guards the fields below.
	mu         sync.Mutex
	queue      []op[T]
	closed     bool
	nextLimits Limits

	wake       chan struct{}
	shutdownC  chan struct{}
	goroutines sync.WaitGroup
	state      runstate.State
	exportCtx  context.Context

	// Owned by the worker goroutine.
	batch    *Batch[T]
	timer    *time.Timer
	timerGen uint64
	armed    bool
}

// NewScheduler creates a scheduler. Start must be called before queued
// operations are processed.
func NewScheduler[T telemetry.Item](set Settings, limits Limits, sink Sink[T], opts ...Option) *Scheduler[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := set.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := set.Recorder
	if recorder == nil {
		recorder = obsreport.NewNop()
	}
	kind := string(set.Kind)
	return &Scheduler[T]{
		kind:       kind,
		logger:     logger.With(zap.String("kind", kind)),
		recorder:   recorder,
		sink:       sink,
		now:        o.now,
		nextLimits: limits.sanitize(),
		wake:       make(chan struct{}, 1),
		shutdownC:  make(chan struct{}),
		exportCtx:  context.Background(),
	}
}

// Start launches the worker goroutine.
func (s *Scheduler[T]) Start(context.Context) error {
	if !s.state.Start() {
		return nil
	}
	s.logger.Debug("Batch scheduler started",
		zap.Int("max_items", s.limits().MaxItems),
		zap.Duration("max_age", s.limits().MaxAge))
	s.goroutines.Add(1)
	go s.startProcessingCycle()
	return nil
}

// Shutdown stops accepting operations, applies the ones already queued,
// hands the last batch to the sink and waits for the worker to exit.
func (s *Scheduler[T]) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if !s.state.Stop() {
		return nil
	}
	close(s.shutdownC)

	done := make(chan struct{})
	go func() {
		s.goroutines.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add enqueues item and returns immediately.
func (s *Scheduler[T]) Add(item T) {
	if !s.enqueue(op[T]{kind: opAdd, item: item}) {
		s.logger.Debug("Dropping item, batch scheduler is shut down")
	}
}

// RenewBatch hands the current batch to the sink and opens a new one seeded
// with the given items. It does not wait for the renewal.
func (s *Scheduler[T]) RenewBatch(seed ...T) {
	s.enqueue(op[T]{kind: opRenew, seed: seed})
}

// ForceEndCurrentBatch hands the current batch to the sink. With wait set it
// blocks until the worker has processed the renewal and every operation
// queued before it.
func (s *Scheduler[T]) ForceEndCurrentBatch(wait bool) {
	if !wait {
		s.enqueue(op[T]{kind: opRenew})
		return
	}
	_ = s.ForceEndCurrentBatchContext(context.Background())
}

// ForceEndCurrentBatchContext is ForceEndCurrentBatch(true) bounded by ctx.
// Use it on shutdown paths.
func (s *Scheduler[T]) ForceEndCurrentBatchContext(ctx context.Context) error {
	if !s.state.Running() {
		return errNotRunning
	}
	done := make(chan struct{})
	if !s.enqueue(op[T]{kind: opRenew, done: done}) {
		return errNotRunning
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetLimits changes the limits of the next batch. The batch currently being
// filled keeps the limits it was created with.
func (s *Scheduler[T]) SetLimits(limits Limits) {
	s.mu.Lock()
	s.nextLimits = limits.sanitize()
	s.mu.Unlock()
}

var errNotRunning = errors.New("batch scheduler is not running")

func (s *Scheduler[T]) limits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLimits
}

func (s *Scheduler[T]) enqueue(o op[T]) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if o.done != nil {
			close(o.done)
		}
		return false
	}
	s.queue = append(s.queue, o)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Scheduler[T]) dequeueAll() []op[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.queue
	s.queue = nil
	return ops
}

func (s *Scheduler[T]) startProcessingCycle() {
	defer s.goroutines.Done()
	for {
		select {
		case <-s.shutdownC:
			// Operations enqueued before Shutdown are still applied.
			for _, o := range s.dequeueAll() {
				s.process(o)
			}
			s.cancelDeadline()
			s.renew(obsreport.TriggerShutdown)
			return
		case <-s.wake:
			for ops := s.dequeueAll(); len(ops) > 0; ops = s.dequeueAll() {
				for _, o := range ops {
					s.process(o)
				}
			}
		}
	}
}

func (s *Scheduler[T]) process(o op[T]) {
	switch o.kind {
	case opAdd:
		s.processItem(o.item)
	case opRenew:
		s.renew(obsreport.TriggerForced, o.seed...)
		if o.done != nil {
			close(o.done)
		}
	case opDeadline:
		// A timer that was cancelled may still have fired concurrently with
		// the cancellation; its generation no longer matches.
		if !s.armed || o.gen != s.timerGen {
			return
		}
		s.renew(obsreport.TriggerTimeout)
	case opBarrier:
		close(o.done)
	}
}

func (s *Scheduler[T]) processItem(item T) {
	if s.batch == nil {
		s.batch = newBatch[T](s.limits(), s.now)
	}
	state, err := s.batch.Add(item)
	if errors.Is(err, ErrBatchClosed) {
		s.recorder.RejectedAdd(s.kind)
		s.renew(s.closeTrigger(), item)
		return
	}
	if state == StateClosed {
		s.renew(s.closeTrigger())
		return
	}
	if !s.armed {
		s.armDeadline()
	}
}

// renew hands the current batch to the sink and replaces it with a batch
// seeded with seed.
func (s *Scheduler[T]) renew(trigger obsreport.Trigger, seed ...T) {
	s.cancelDeadline()
	if s.batch != nil && s.batch.Len() > 0 {
		s.sendItems(trigger, s.batch.Items())
	}
	s.batch = newBatch(s.limits(), s.now, seed...)
	if s.batch.Len() == 0 {
		return
	}
	if s.batch.State() == StateClosed {
		s.renew(s.closeTrigger())
		return
	}
	s.armDeadline()
}

func (s *Scheduler[T]) closeTrigger() obsreport.Trigger {
	if s.batch != nil && s.batch.Len() >= s.batch.Limits().MaxItems {
		return obsreport.TriggerSize
	}
	return obsreport.TriggerTimeout
}

func (s *Scheduler[T]) sendItems(trigger obsreport.Trigger, items []T) {
	s.recorder.BatchSent(s.kind, trigger, len(items))
	if err := s.sink.ConsumeBatch(s.exportCtx, items); err != nil {
		s.logger.Warn("Sender failed", zap.Error(err), zap.Int("items", len(items)))
	}
}

func (s *Scheduler[T]) armDeadline() {
	s.cancelDeadline()
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(s.batch.remaining(), func() {
		s.enqueue(op[T]{kind: opDeadline, gen: gen})
	})
	s.armed = true
}

func (s *Scheduler[T]) cancelDeadline() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.armed {
		s.timerGen++
	}
	s.armed = false
}
