// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle // import "go.opentelemetry.io/mobile/lifecycle"

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/session"
)

// automatic keeps exactly one session open while active. Ending a session
// means starting the next one.
type automatic struct {
	logger      *zap.Logger
	controller  Controller
	gracePeriod time.Duration
	now         func() time.Time
	provider    StateProvider

	// mu serializes the read-decide-act sequence of each handler.
	mu     sync.Mutex
	active bool
	state  session.State
}

func (d *automatic) Setup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.provider.AppState() == session.StateForeground {
		d.state = session.StateForeground
	} else {
		d.state = session.StateBackground
	}
	d.active = true
}

func (d *automatic) Stop() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
}

func (d *automatic) StartSession() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		d.controller.StartSession(d.state)
	}
}

// EndSession starts a new session in the current app state; there is always
// a session while the driver is active.
func (d *automatic) EndSession() {
	d.StartSession()
}

func (d *automatic) OnEvent(e Event) {
	switch e {
	case EventBecameActive:
		d.becameActive()
	case EventEnteredBackground:
		d.enteredBackground()
	case EventWillTerminate:
		d.controller.MarkTerminated()
	default:
		d.logger.Debug("Ignoring unknown lifecycle event", zap.String("event", string(e)))
	}
}

func (d *automatic) becameActive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = session.StateForeground
	if !d.active {
		return
	}

	current, ok := d.controller.CurrentSession()
	switch {
	case !ok:
		d.controller.StartSession(session.StateForeground)
	case current.State == session.StateForeground:
	case d.withinGracePeriod(current):
		d.logger.Debug("Cold start session moved to foreground", zap.String("session_id", current.ID))
		d.controller.UpdateState(session.StateForeground)
	default:
		d.controller.StartSession(session.StateForeground)
	}
}

func (d *automatic) enteredBackground() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = session.StateBackground
	if !d.active {
		return
	}

	if current, ok := d.controller.CurrentSession(); ok && current.State == session.StateBackground {
		return
	}
	d.controller.StartSession(session.StateBackground)
}

// withinGracePeriod applies to the first session of the process only.
func (d *automatic) withinGracePeriod(s session.Session) bool {
	if !s.ColdStart {
		return false
	}
	elapsed := d.now().Sub(s.StartTime)
	return elapsed >= 0 && elapsed <= d.gracePeriod
}
