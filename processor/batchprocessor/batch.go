// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package batchprocessor // import "go.opentelemetry.io/mobile/processor/batchprocessor"

import (
	"errors"
	"time"

	"go.opentelemetry.io/mobile/telemetry"
)

// ErrBatchClosed is returned by Batch.Add when the batch had already reached
// one of its limits before the call. The item was not added; the caller has
// to replace the batch and retry.
var ErrBatchClosed = errors.New("batch is closed")

// State of a batch.
type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}

// Batch accumulates items of one telemetry kind until it reaches its item
// count limit or its age limit. Items keep their arrival order and are never
// removed; a closed batch is replaced as a whole.
//
// Batch is not safe for concurrent use. The Scheduler confines each batch to
// its worker goroutine.
type Batch[T telemetry.Item] struct {
	limits   Limits
	items    []T
	earliest time.Time
	now      func() time.Time
}

// NewBatch creates a batch with the given limits, optionally pre-seeded with
// items carried over from a batch that closed underneath them.
func NewBatch[T telemetry.Item](limits Limits, seed ...T) *Batch[T] {
	return newBatch(limits, time.Now, seed...)
}

func newBatch[T telemetry.Item](limits Limits, now func() time.Time, seed ...T) *Batch[T] {
	b := &Batch[T]{
		limits: limits.sanitize(),
		items:  make([]T, 0, len(seed)),
		now:    now,
	}
	for _, item := range seed {
		b.append(item)
	}
	return b
}

// Add appends item and returns the state of the batch after the append.
func (b *Batch[T]) Add(item T) (State, error) {
	now := b.now()
	if b.stateAt(now) == StateClosed {
		return StateClosed, ErrBatchClosed
	}
	b.append(item)
	return b.stateAt(now), nil
}

// State computes the current state from the contents and the clock.
func (b *Batch[T]) State() State {
	return b.stateAt(b.now())
}

// Age is measured from the earliest item timestamp, so items seeded from a
// previous batch shorten the deadline of this one.
func (b *Batch[T]) Age() time.Duration {
	return b.ageAt(b.now())
}

// Len returns the number of items in the batch.
func (b *Batch[T]) Len() int {
	return len(b.items)
}

// Items returns the batched items in arrival order. The slice is owned by the
// batch until the batch is discarded.
func (b *Batch[T]) Items() []T {
	return b.items
}

// Limits returns the limits this batch was created with.
func (b *Batch[T]) Limits() Limits {
	return b.limits
}

// append tracks the earliest timestamp. Items stamped in the future count
// as produced now, so a skewed clock cannot hold a batch open.
func (b *Batch[T]) append(item T) {
	ts := item.Timestamp()
	if now := b.now(); ts.After(now) {
		ts = now
	}
	if len(b.items) == 0 || ts.Before(b.earliest) {
		b.earliest = ts
	}
	b.items = append(b.items, item)
}

func (b *Batch[T]) stateAt(now time.Time) State {
	if len(b.items) == 0 {
		return StateOpen
	}
	if len(b.items) >= b.limits.MaxItems {
		return StateClosed
	}
	if b.limits.MaxAge == 0 || b.ageAt(now) > b.limits.MaxAge {
		return StateClosed
	}
	return StateOpen
}

func (b *Batch[T]) ageAt(now time.Time) time.Duration {
	if len(b.items) == 0 {
		return 0
	}
	return now.Sub(b.earliest)
}

// remaining returns how long until the batch exceeds its age limit.
func (b *Batch[T]) remaining() time.Duration {
	d := b.limits.MaxAge - b.Age()
	if d < 0 {
		return 0
	}
	return d
}
