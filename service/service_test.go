// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/config"
	"go.opentelemetry.io/mobile/crashlinkage"
	"go.opentelemetry.io/mobile/exporter/retrysender"
	"go.opentelemetry.io/mobile/internal/processinfo"
	"go.opentelemetry.io/mobile/lifecycle"
	"go.opentelemetry.io/mobile/session"
	"go.opentelemetry.io/mobile/telemetry"
)

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

type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) ConsumeBatch(_ context.Context, items []T) error {
	c.mu.Lock()
	c.items = append(c.items, items...)
	c.mu.Unlock()
	return nil
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

type recordingUploader struct {
	mu   sync.Mutex
	reqs []retrysender.Request
}

func (u *recordingUploader) Upload(_ context.Context, req retrysender.Request) error {
	u.mu.Lock()
	u.reqs = append(u.reqs, req)
	u.mu.Unlock()
	return nil
}

func (u *recordingUploader) requests() []retrysender.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]retrysender.Request(nil), u.reqs...)
}

var foreground = lifecycle.StateProviderFunc(func() session.State { return session.StateForeground })

type harness struct {
	srv   *Service
	clock *fakeClock
	spans *collector[telemetry.Span]
	logs  *collector[telemetry.Log]
}

func testSettings(processID string) Settings {
	return Settings{
		Logger:        zap.NewNop(),
		Process:       processinfo.Info{ID: processID, PID: 42},
		StateProvider: foreground,
	}
}

func startHarness(t *testing.T, set Settings, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		clock: newFakeClock(),
		spans: &collector[telemetry.Span]{},
		logs:  &collector[telemetry.Log]{},
	}
	srv, err := New(set, cfg, WithClock(h.clock.Now), WithSinks(h.spans, h.logs))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown(context.Background()))
	})
	h.srv = srv
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.srv.Flush(context.Background()))
}

func sessionSpansOf(spans []telemetry.Span) []telemetry.Span {
	var out []telemetry.Span
	for _, s := range spans {
		if s.Type == sessionSpanType {
			out = append(out, s)
		}
	}
	return out
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Spans.MaxItems = -1
	_, err := New(testSettings("p1"), cfg)
	assert.ErrorContains(t, err, "spans")
}

func TestStartOpensSession(t *testing.T) {
	h := startHarness(t, testSettings("p1"), config.Default())

	cur, ok := h.srv.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, session.StateForeground, cur.State)
	assert.Equal(t, "p1", cur.ProcessID)
	assert.True(t, cur.ColdStart)
	assert.Equal(t, h.clock.Now(), cur.StartTime)
}

func TestAddSpanStampsSession(t *testing.T) {
	h := startHarness(t, testSettings("p1"), config.Default())
	cur, _ := h.srv.CurrentSession()

	require.True(t, h.srv.AddSpan(telemetry.Span{Name: "checkout"}))
	require.True(t, h.srv.AddLog(telemetry.Log{Body: "hello"}))
	h.flush(t)

	spans := h.spans.all()
	require.Len(t, spans, 1)
	assert.Equal(t, "checkout", spans[0].Name)
	assert.Equal(t, cur.ID, spans[0].SessionID)
	assert.Equal(t, "p1", spans[0].ProcessID)
	assert.NotEmpty(t, spans[0].ID)
	assert.Equal(t, h.clock.Now(), spans[0].StartTime)

	logs := h.logs.all()
	require.Len(t, logs, 1)
	assert.Equal(t, cur.ID, logs[0].SessionID)
	assert.Equal(t, telemetry.LogTypeDefault, logs[0].Type)
	assert.Equal(t, telemetry.SeverityInfo, logs[0].Severity)
}

func TestSessionSpanCarriesEvents(t *testing.T) {
	h := startHarness(t, testSettings("p1"), config.Default())
	first, _ := h.srv.CurrentSession()

	require.True(t, h.srv.AddBreadcrumb("opened cart"))
	require.True(t, h.srv.AddTap("buy_button", 10, 20.5))
	h.clock.Advance(time.Minute)
	h.srv.OnLifecycleEvent(lifecycle.EventEnteredBackground)
	h.flush(t)

	spans := sessionSpansOf(h.spans.all())
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, first.ID, span.SessionID)
	assert.Equal(t, first.TraceID, span.TraceID)
	assert.Equal(t, first.SpanID, span.SpanID)
	assert.Equal(t, first.StartTime, span.StartTime)
	assert.Equal(t, first.StartTime.Add(time.Minute), span.EndTime)
	require.Len(t, span.Events, 2)
	assert.Equal(t, telemetry.EventTypeBreadcrumb, span.Events[0].Type)
	assert.Equal(t, "opened cart", span.Events[0].Attributes[0].Value.AsString())
	assert.Equal(t, telemetry.EventTypeTap, span.Events[1].Type)
	assert.Equal(t, "10,20.5", span.Events[1].Attributes[1].Value.AsString())

	cur, ok := h.srv.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, session.StateBackground, cur.State)
	assert.NotEqual(t, first.ID, cur.ID)
}

func TestEventBudgetResetsWithSession(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.Categories[string(telemetry.EventTypeBreadcrumb)] = 2
	h := startHarness(t, testSettings("p1"), cfg)

	assert.True(t, h.srv.AddBreadcrumb("1"))
	assert.True(t, h.srv.AddBreadcrumb("2"))
	assert.False(t, h.srv.AddBreadcrumb("3"))

	h.srv.StartSession()
	assert.True(t, h.srv.AddBreadcrumb("4"))
}

func TestLogBudget(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.LogSeverity[telemetry.SeverityInfo.String()] = 1
	h := startHarness(t, testSettings("p1"), cfg)

	assert.True(t, h.srv.AddLog(telemetry.Log{Body: "a", Severity: telemetry.SeverityDebug}))
	assert.False(t, h.srv.AddLog(telemetry.Log{Body: "b", Severity: telemetry.SeverityInfo}))
	assert.True(t, h.srv.AddLog(telemetry.Log{Body: "c", Severity: telemetry.SeverityError}))
	assert.True(t, h.srv.AddLog(telemetry.Log{Body: "d", Type: telemetry.LogTypeInternal}))
}

func TestBackgroundSessionsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Session.BackgroundSessionsEnabled = false
	set := testSettings("p1")
	set.StateProvider = nil
	h := startHarness(t, set, cfg)

	cur, ok := h.srv.CurrentSession()
	require.True(t, ok)
	require.Equal(t, session.StateBackground, cur.State)

	assert.False(t, h.srv.AddSpan(telemetry.Span{Name: "work"}))
	assert.False(t, h.srv.AddLog(telemetry.Log{Body: "dropped"}))
	assert.False(t, h.srv.AddBreadcrumb("dropped"))
	assert.True(t, h.srv.AddLog(telemetry.Log{Body: "sdk", Type: telemetry.LogTypeInternal}))

	// Past the grace period the background session ends, and it leaves no
	// session span either.
	h.clock.Advance(time.Minute)
	h.srv.OnLifecycleEvent(lifecycle.EventBecameActive)
	cur, _ = h.srv.CurrentSession()
	require.Equal(t, session.StateForeground, cur.State)
	h.flush(t)
	assert.Empty(t, h.spans.all())
	assert.Len(t, h.logs.all(), 1)

	require.NoError(t, h.srv.UpdateRemoteConfig(map[string]interface{}{
		"session": map[string]interface{}{"background_sessions_enabled": "true"},
	}))
	h.srv.OnLifecycleEvent(lifecycle.EventEnteredBackground)
	assert.True(t, h.srv.AddSpan(telemetry.Span{Name: "work"}))
	assert.True(t, h.srv.Config().Session.BackgroundSessionsEnabled)
}

func TestManualMode(t *testing.T) {
	cfg := config.Default()
	cfg.Lifecycle.Mode = lifecycle.ModeManual
	h := startHarness(t, testSettings("p1"), cfg)

	first, ok := h.srv.CurrentSession()
	require.True(t, ok)
	h.srv.OnLifecycleEvent(lifecycle.EventEnteredBackground)
	cur, _ := h.srv.CurrentSession()
	assert.Equal(t, first.ID, cur.ID)

	h.srv.EndSession()
	_, ok = h.srv.CurrentSession()
	assert.False(t, ok)
	assert.False(t, h.srv.AddBreadcrumb("nowhere"))
	require.True(t, h.srv.AddSpan(telemetry.Span{Name: "orphan"}))

	h.srv.StartSession()
	_, ok = h.srv.CurrentSession()
	assert.True(t, ok)

	h.flush(t)
	var orphan telemetry.Span
	for _, s := range h.spans.all() {
		if s.Name == "orphan" {
			orphan = s
		}
	}
	assert.Empty(t, orphan.SessionID)
	assert.Len(t, sessionSpansOf(h.spans.all()), 1)
}

func TestReportCrash(t *testing.T) {
	var forwarded []crashlinkage.Linked
	var mu sync.Mutex
	set := testSettings("p1")
	set.CrashForwarder = crashlinkage.ForwarderFunc(func(_ context.Context, l crashlinkage.Linked) error {
		mu.Lock()
		forwarded = append(forwarded, l)
		mu.Unlock()
		return nil
	})
	reg := prometheus.NewRegistry()
	set.Registerer = reg
	cfg := config.Default()
	cfg.Limits.LogSeverity[telemetry.SeverityError.String()] = 0
	h := startHarness(t, set, cfg)
	cur, _ := h.srv.CurrentSession()

	linked := h.srv.ReportCrash(context.Background(), crashlinkage.Payload{
		ID:          "crash-1",
		Signal:      11,
		WindowStart: cur.StartTime,
	})
	assert.True(t, linked.Linked)
	assert.Equal(t, cur.ID, linked.SessionID)
	assert.Equal(t, crashlinkage.KindCrash, linked.Kind)

	unlinked := h.srv.ReportCrash(context.Background(), crashlinkage.Payload{
		ID:          "hang-1",
		Kind:        crashlinkage.KindHang,
		WindowStart: cur.StartTime.Add(-time.Hour),
	})
	assert.False(t, unlinked.Linked)
	h.flush(t)

	logs := h.logs.all()
	require.Len(t, logs, 2)
	assert.Equal(t, telemetry.LogTypeCrash, logs[0].Type)
	assert.Equal(t, cur.ID, logs[0].SessionID)
	assert.Equal(t, cur.StartTime, logs[0].Time)
	assert.Equal(t, telemetry.LogTypeHang, logs[1].Type)
	assert.Empty(t, logs[1].SessionID)

	mu.Lock()
	assert.Len(t, forwarded, 2)
	mu.Unlock()

	payloads, err := testutil.GatherAndCount(reg, "sessioncore_crash_payloads_total")
	require.NoError(t, err)
	assert.Equal(t, 2, payloads)
}

func TestUpdateRemoteConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.Categories[string(telemetry.EventTypeTap)] = 1
	h := startHarness(t, testSettings("p1"), cfg)
	before := h.srv.Config()

	err := h.srv.UpdateRemoteConfig(map[string]interface{}{"spans.max_items": -1})
	require.Error(t, err)
	assert.Same(t, before, h.srv.Config())

	require.NoError(t, h.srv.UpdateRemoteConfig(map[string]interface{}{
		"limits.categories.tap": 3,
		"logs.max_items":        1,
	}))
	assert.Equal(t, 1, h.srv.Config().Logs.MaxItems)

	// Budgets change with the next session.
	assert.True(t, h.srv.AddTap("a", 0, 0))
	assert.False(t, h.srv.AddTap("b", 0, 0))
	h.srv.StartSession()
	for i := 0; i < 3; i++ {
		assert.True(t, h.srv.AddTap("c", 0, 0))
	}
	assert.False(t, h.srv.AddTap("d", 0, 0))
}

func TestShutdownFlushes(t *testing.T) {
	h := startHarness(t, testSettings("p1"), config.Default())
	require.True(t, h.srv.AddLog(telemetry.Log{Body: "last words"}))
	require.NoError(t, h.srv.Shutdown(context.Background()))

	logs := h.logs.all()
	require.Len(t, logs, 1)
	assert.Equal(t, "last words", logs[0].Body)
	assert.False(t, h.srv.AddSpan(telemetry.Span{Name: "late"}))
	assert.False(t, h.srv.AddLog(telemetry.Log{Body: "late"}))
}

func storageConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Storage.Enabled = true
	cfg.Storage.Directory = dir
	cfg.Storage.NoSync = true
	return cfg
}

func TestStoreAndUpload(t *testing.T) {
	up := &recordingUploader{}
	set := testSettings("p1")
	set.Uploader = up
	srv, err := New(set, storageConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))

	require.True(t, srv.AddSpan(telemetry.Span{Name: "upload me"}))
	require.NoError(t, srv.Flush(context.Background()))
	require.Eventually(t, func() bool { return len(up.requests()) == 1 }, 5*time.Second, 5*time.Millisecond)

	req := up.requests()[0]
	assert.Equal(t, telemetry.KindSpan, req.Kind)
	assert.Equal(t, 1, req.Count)
	assert.Contains(t, string(req.Payload), "upload me")
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestRecoverPreviousProcess(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()

	// The first process stores a batch but has nowhere to upload it, then
	// dies with its session still open.
	first, err := New(testSettings("p1"), storageConfig(dir), WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	crashed, ok := first.CurrentSession()
	require.True(t, ok)
	require.True(t, first.AddSpan(telemetry.Span{Name: "left behind"}))
	require.NoError(t, first.Shutdown(context.Background()))

	clock.Advance(time.Hour)
	up := &recordingUploader{}
	set := testSettings("p2")
	set.Uploader = up
	second, err := New(set, storageConfig(dir), WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))

	require.Eventually(t, func() bool { return len(up.requests()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, string(up.requests()[0].Payload), "left behind")

	// The crash report of the first process links to its session.
	linked := second.ReportCrash(context.Background(), crashlinkage.Payload{
		ID:          "crash-1",
		WindowStart: crashed.StartTime,
	})
	require.True(t, linked.Linked)
	assert.Equal(t, crashed.ID, linked.SessionID)
	assert.Equal(t, "p1", linked.ProcessID)
	row, ok := second.Storage().Session(crashed.ID)
	require.True(t, ok)
	assert.Equal(t, "crash-1", row.CrashReportID)

	require.NoError(t, second.Shutdown(context.Background()))
}
