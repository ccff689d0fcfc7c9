// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/mobile/session"

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/internal/obsreport"
	"go.opentelemetry.io/mobile/internal/processinfo"
)

// Settings carries the ambient dependencies of a Controller.
type Settings struct {
	Logger   *zap.Logger
	Recorder *obsreport.Recorder
	Process  processinfo.Info
}

// Option is an option to Controller.
type Option func(*Controller)

// WithClock replaces the clock used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller is the source of truth for sessions. It owns the current
// session; every other component sees snapshots.
//
// Starting a session ends the current one first, so at most one session is
// active at any time. Transitions are serialized; CurrentSession may be
// called concurrently with a transition and returns either the state before
// or the state after it.
type Controller struct {
	logger   *zap.Logger
	recorder *obsreport.Recorder
	store    Store
	cfg      Config
	process  processinfo.Info
	now      func() time.Time

	// transitionMu serializes transitions and guards the fields below.
	transitionMu sync.Mutex
	hadSession   bool
	heartbeatC   chan struct{}
	shutdown     bool

	// mu guards current.
	mu      sync.RWMutex
	current *Session

	listenersMu sync.RWMutex
	listeners   []Listener

	goroutines sync.WaitGroup
}

// NewController creates a controller. A nil store discards snapshots.
func NewController(set Settings, cfg Config, store Store, opts ...Option) *Controller {
	if set.Logger == nil {
		set.Logger = zap.NewNop()
	}
	if set.Recorder == nil {
		set.Recorder = obsreport.NewNop()
	}
	if set.Process.ID == "" {
		set.Process = processinfo.Current()
	}
	if store == nil {
		store = nopStore{}
	}
	c := &Controller{
		logger:   set.Logger,
		recorder: set.Recorder,
		store:    store,
		cfg:      cfg,
		process:  set.Process,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddListener registers l for all future transitions.
func (c *Controller) AddListener(l Listener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// CurrentSession returns a snapshot of the active session.
func (c *Controller) CurrentSession() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Session{}, false
	}
	return *c.current, true
}

// StartSession ends the current session, if any, and starts a new one in
// the given state.
func (c *Controller) StartSession(state State) Session {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()

	now := c.now()
	if _, ok := c.CurrentSession(); ok {
		c.endLocked(now, true)
	}

	s := Session{
		ID:                uuid.NewString(),
		ProcessID:         c.process.ID,
		State:             state,
		TraceID:           newTraceID().String(),
		SpanID:            newSpanID().String(),
		StartTime:         now,
		LastHeartbeatTime: now,
		ColdStart:         !c.hadSession,
		ProcessStartTime:  c.process.StartTime,
	}
	c.hadSession = true
	c.publish(&s)
	c.persist(s)
	c.startHeartbeat(s.ID)

	c.recorder.SessionStarted(string(state))
	c.logger.Debug("Session started",
		zap.String("session_id", s.ID),
		zap.String("state", string(state)),
		zap.Bool("cold_start", s.ColdStart))
	c.notify(func(l Listener) { l.SessionDidStart(s) })
	return s
}

// EndSession ends the current session without starting a replacement. It
// returns the final snapshot, or false if there was no session.
func (c *Controller) EndSession() (Session, bool) {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()

	if _, ok := c.CurrentSession(); !ok {
		return Session{}, false
	}
	return c.endLocked(c.now(), false), true
}

// UpdateState changes the state of the current session in place.
func (c *Controller) UpdateState(state State) bool {
	return c.update(func(s *Session) {
		s.State = state
	})
}

// MarkTerminated records that the app is being terminated. The session is
// not ended: the process keeps running until the OS kills it, and the
// session does not count as a clean exit.
func (c *Controller) MarkTerminated() bool {
	return c.update(func(s *Session) {
		s.AppTerminated = true
		s.CleanExit = false
	})
}

// Heartbeat refreshes the last heartbeat time of the current session.
func (c *Controller) Heartbeat() bool {
	return c.update(func(*Session) {})
}

// SetBackgroundSessionsEnabled changes whether background sessions are
// persisted from now on.
func (c *Controller) SetBackgroundSessionsEnabled(enabled bool) {
	c.transitionMu.Lock()
	c.cfg.BackgroundSessionsEnabled = enabled
	c.transitionMu.Unlock()
}

// BackgroundSessionsEnabled reports whether background sessions are
// persisted.
func (c *Controller) BackgroundSessionsEnabled() bool {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()
	return c.cfg.BackgroundSessionsEnabled
}

// Shutdown stops the heartbeat. The current session is left as is.
func (c *Controller) Shutdown(context.Context) error {
	c.transitionMu.Lock()
	c.shutdown = true
	c.stopHeartbeat()
	c.transitionMu.Unlock()

	c.goroutines.Wait()
	return nil
}

func (c *Controller) update(mutate func(*Session)) bool {
	return c.updateIf(nil, mutate)
}

func (c *Controller) updateIf(match func(Session) bool, mutate func(*Session)) bool {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()

	s, ok := c.CurrentSession()
	if !ok || (match != nil && !match(s)) {
		return false
	}
	c.beat(&s, c.now())
	mutate(&s)
	c.publish(&s)
	c.persist(s)
	c.notify(func(l Listener) { l.SessionUpdated(s) })
	return true
}

// endLocked ends the current session. When replace is set the ended session
// stays published until the caller publishes its successor, so readers never
// observe a gap between the two.
func (c *Controller) endLocked(now time.Time, replace bool) Session {
	s, _ := c.CurrentSession()
	c.stopHeartbeat()

	c.beat(&s, now)
	end := now
	s.EndTime = &end
	s.CleanExit = true

	if !replace {
		c.publish(nil)
	}
	c.persist(s)
	c.logger.Debug("Session ended", zap.String("session_id", s.ID))
	c.notify(func(l Listener) { l.SessionDidEnd(s) })
	return s
}

// beat moves the heartbeat forward; it never goes back.
func (c *Controller) beat(s *Session, now time.Time) {
	if now.After(s.LastHeartbeatTime) {
		s.LastHeartbeatTime = now
	}
}

func (c *Controller) publish(s *Session) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

func (c *Controller) persist(s Session) {
	if s.State == StateBackground && !c.cfg.BackgroundSessionsEnabled {
		return
	}
	if err := c.store.UpsertSession(context.Background(), s); err != nil {
		c.logger.Warn("Error trying to update session", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (c *Controller) notify(fn func(Listener)) {
	c.listenersMu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

func newTraceID() trace.TraceID {
	var id trace.TraceID
	_, _ = rand.Read(id[:])
	return id
}

func newSpanID() trace.SpanID {
	var id trace.SpanID
	_, _ = rand.Read(id[:])
	return id
}
