// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package batchprocessor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/internal/obsreport"
	"go.opentelemetry.io/mobile/telemetry"
)

func newTestScheduler(t *testing.T, limits Limits, sink Sink[testItem], opts ...Option) *Scheduler[testItem] {
	t.Helper()
	s := NewScheduler[testItem](Settings{Kind: telemetry.KindSpan, Logger: zap.NewNop()}, limits, sink, opts...)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestSchedulerDeliversAllItems(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 37, MaxAge: time.Hour}, sink)

	const producers = 10
	const perProducer = 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.Add(testItem{ID: p*perProducer + i, At: time.Now()})
				if i%17 == 0 {
					s.ForceEndCurrentBatch(false)
				}
				if i%29 == 0 {
					s.RenewBatch()
				}
			}
		}(p)
	}
	wg.Wait()
	s.ForceEndCurrentBatch(true)

	ids := sink.ids()
	require.Len(t, ids, producers*perProducer)
	sort.Ints(ids)
	for i, id := range ids {
		require.Equal(t, i, id)
	}
	for _, b := range sink.snapshot() {
		assert.NotEmpty(t, b)
		assert.LessOrEqual(t, len(b), 37)
	}
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerSentBySize(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 10, MaxAge: time.Hour}, sink)

	for i := 0; i < 100; i++ {
		s.Add(testItem{ID: i, At: time.Now()})
	}
	s.ForceEndCurrentBatch(true)

	batches := sink.snapshot()
	require.Len(t, batches, 10)
	next := 0
	for _, b := range batches {
		require.Len(t, b, 10)
		for _, item := range b {
			assert.Equal(t, next, item.ID)
			next++
		}
	}
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerSentByTimeout(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 100, MaxAge: 50 * time.Millisecond}, sink)

	for i := 0; i < 5; i++ {
		s.Add(testItem{ID: i, At: time.Now()})
	}
	require.Eventually(t, func() bool { return sink.batchCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, sink.snapshot()[0], 5)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerDeadlineRearmedOnRenewal(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 2, MaxAge: 300 * time.Millisecond}, sink)

	start := time.Now()
	s.Add(testItem{ID: 1, At: time.Now()})
	time.Sleep(200 * time.Millisecond)
	s.Add(testItem{ID: 2, At: time.Now()})
	s.Add(testItem{ID: 3, At: time.Now()})
	s.ForceEndCurrentBatch(false)
	s.Add(testItem{ID: 4, At: time.Now()})

	// The timer armed for the first batch would have fired at ~300ms. It was
	// cancelled by the size trigger, so item 4 stays put until its own
	// deadline at ~500ms.
	time.Sleep(time.Until(start.Add(380 * time.Millisecond)))
	assert.Equal(t, 2, sink.batchCount())

	require.Eventually(t, func() bool { return sink.batchCount() == 3 }, 2*time.Second, 5*time.Millisecond)
	batches := sink.snapshot()
	assert.Equal(t, []int{1, 2}, idsOf(batches[0]))
	assert.Equal(t, []int{3}, idsOf(batches[1]))
	assert.Equal(t, []int{4}, idsOf(batches[2]))
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerForceEndConcurrentWithAdds(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 1000, MaxAge: time.Hour}, sink)

	s.Add(testItem{ID: 0, At: time.Now()})
	var wg sync.WaitGroup
	for i := 1; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(testItem{ID: i, At: time.Now()})
		}(i)
	}
	s.ForceEndCurrentBatch(true)

	batches := sink.snapshot()
	require.Len(t, batches, 1)
	first := idsOf(batches[0])
	assert.Equal(t, 0, first[0])
	assertUnique(t, first)

	wg.Wait()
	s.ForceEndCurrentBatch(true)
	all := sink.ids()
	assert.Len(t, all, 50)
	assertUnique(t, all)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerRejectedAddSeedsNextBatch(t *testing.T) {
	clock := newFakeClock()
	reg := prometheus.NewRegistry()
	rec, err := obsreport.New(reg)
	require.NoError(t, err)

	sink := &testSink{}
	s := NewScheduler[testItem](Settings{Kind: telemetry.KindLog, Recorder: rec}, Limits{MaxItems: 10, MaxAge: time.Hour}, sink, WithClock(clock.Now))
	require.NoError(t, s.Start(context.Background()))

	s.Add(testItem{ID: 1, At: clock.Now()})
	s.ForceEndCurrentBatch(true)
	require.Equal(t, 1, sink.batchCount())

	s.Add(testItem{ID: 2, At: clock.Now()})
	waitIdle(s)
	// The batch is now older than its limit but its timer runs on the wall
	// clock and has not fired.
	clock.Advance(2 * time.Hour)
	s.Add(testItem{ID: 3, At: clock.Now()})
	waitIdle(s)
	require.Equal(t, 2, sink.batchCount())

	s.ForceEndCurrentBatch(true)
	batches := sink.snapshot()
	require.Len(t, batches, 3)
	assert.Equal(t, []int{1}, idsOf(batches[0]))
	assert.Equal(t, []int{2}, idsOf(batches[1]))
	assert.Equal(t, []int{3}, idsOf(batches[2]))

	rejected, err := testutil.GatherAndCount(reg, "sessioncore_batch_rejected_adds_total")
	require.NoError(t, err)
	assert.Equal(t, 1, rejected)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerSetLimitsAppliesToNextBatch(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 5, MaxAge: time.Hour}, sink)

	s.Add(testItem{ID: 1, At: time.Now()})
	s.Add(testItem{ID: 2, At: time.Now()})
	waitIdle(s)
	s.SetLimits(Limits{MaxItems: 2, MaxAge: time.Hour})
	for _, id := range []int{3, 4, 5, 6, 7} {
		s.Add(testItem{ID: id, At: time.Now()})
	}
	waitIdle(s)

	batches := sink.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, idsOf(batches[0]))
	assert.Equal(t, []int{6, 7}, idsOf(batches[1]))
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerRenewWithSeed(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 10, MaxAge: time.Hour}, sink)

	s.Add(testItem{ID: 1, At: time.Now()})
	s.RenewBatch(items(time.Now, 2, 3)...)
	s.ForceEndCurrentBatch(true)

	batches := sink.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, []int{1}, idsOf(batches[0]))
	assert.Equal(t, []int{2, 3}, idsOf(batches[1]))
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerShutdownFlushes(t *testing.T) {
	sink := &testSink{}
	s := newTestScheduler(t, Limits{MaxItems: 10, MaxAge: time.Hour}, sink)
	for i := 0; i < 3; i++ {
		s.Add(testItem{ID: i, At: time.Now()})
	}
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))

	require.Equal(t, 1, sink.batchCount())
	assert.Equal(t, []int{0, 1, 2}, sink.ids())

	s.Add(testItem{ID: 9, At: time.Now()})
	s.ForceEndCurrentBatch(true)
	assert.ErrorIs(t, s.ForceEndCurrentBatchContext(context.Background()), errNotRunning)
	assert.Equal(t, 1, sink.batchCount())
}

func TestSchedulerSinkErrorIsNotRetried(t *testing.T) {
	sink := &testSink{err: errors.New("disk full")}
	s := newTestScheduler(t, Limits{MaxItems: 2, MaxAge: time.Hour}, sink)
	for i := 0; i < 4; i++ {
		s.Add(testItem{ID: i, At: time.Now()})
	}
	s.ForceEndCurrentBatch(true)
	assert.Equal(t, 2, sink.batchCount())
	assert.Equal(t, []int{0, 1, 2, 3}, sink.ids())
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerForceEndRespectsContext(t *testing.T) {
	block := make(chan struct{})
	sink := SinkFunc[testItem](func(context.Context, []testItem) error {
		<-block
		return nil
	})
	s := newTestScheduler(t, Limits{MaxItems: 1, MaxAge: time.Hour}, sink)
	s.Add(testItem{ID: 1, At: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.ForceEndCurrentBatchContext(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerRecordsTriggers(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := obsreport.New(reg)
	require.NoError(t, err)
	sink := &testSink{}
	s := NewScheduler[testItem](Settings{Kind: telemetry.KindSpan, Recorder: rec}, Limits{MaxItems: 2, MaxAge: time.Hour}, sink)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 3; i++ {
		s.Add(testItem{ID: i, At: time.Now()})
	}
	s.ForceEndCurrentBatch(true)
	require.NoError(t, s.Shutdown(context.Background()))

	sent, err := testutil.GatherAndCount(reg, "sessioncore_batches_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

// waitIdle blocks until every operation queued so far has been applied.
func waitIdle(s *Scheduler[testItem]) {
	done := make(chan struct{})
	s.enqueue(op[testItem]{kind: opBarrier, done: done})
	<-done
}

func idsOf(batch []testItem) []int {
	ids := make([]int, 0, len(batch))
	for _, item := range batch {
		ids = append(ids, item.ID)
	}
	return ids
}

func assertUnique(t *testing.T, ids []int) {
	t.Helper()
	seen := map[int]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate item %d", id)
		seen[id] = true
	}
}

func TestSchedulerBatchesLongSpans(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var batches [][]telemetry.Span
	sink := SinkFunc[telemetry.Span](func(_ context.Context, spans []telemetry.Span) error {
		mu.Lock()
		batches = append(batches, spans)
		mu.Unlock()
		return nil
	})
	s := NewScheduler[telemetry.Span](Settings{Kind: telemetry.KindSpan, Logger: zap.NewNop()},
		Limits{MaxItems: 1000, MaxAge: 5 * time.Second}, sink, WithClock(clock.Now))
	require.NoError(t, s.Start(context.Background()))

	// Each span lasted longer than the age limit and just ended.
	for i := 0; i < 10; i++ {
		end := clock.Now()
		s.Add(telemetry.Span{Name: "long", StartTime: end.Add(-6 * time.Second), EndTime: end})
		clock.Advance(10 * time.Millisecond)
	}
	s.ForceEndCurrentBatch(true)

	mu.Lock()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 10)
	mu.Unlock()
	require.NoError(t, s.Shutdown(context.Background()))
}
