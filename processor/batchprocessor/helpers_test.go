// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package batchprocessor

import (
	"context"
	"sync"
	"time"
)

type testItem struct {
	ID int
	At time.Time
}

func (i testItem) Timestamp() time.Time {
	return i.At
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testSink struct {
	mu      sync.Mutex
	batches [][]testItem
	err     error
}

func (ts *testSink) ConsumeBatch(_ context.Context, items []testItem) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.batches = append(ts.batches, items)
	return ts.err
}

func (ts *testSink) snapshot() [][]testItem {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([][]testItem, len(ts.batches))
	copy(out, ts.batches)
	return out
}

func (ts *testSink) batchCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.batches)
}

func (ts *testSink) ids() []int {
	var ids []int
	for _, b := range ts.snapshot() {
		for _, item := range b {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

func items(clock func() time.Time, ids ...int) []testItem {
	out := make([]testItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, testItem{ID: id, At: clock()})
	}
	return out
}
