// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle // import "go.opentelemetry.io/mobile/lifecycle"

import (
	"sync"

	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/session"
)

// manual leaves session boundaries to the host application. It is the only
// variant under which no session may be current at rest.
type manual struct {
	logger     *zap.Logger
	controller Controller

	mu     sync.Mutex
	active bool
}

func (d *manual) Setup() {
	d.mu.Lock()
	d.active = true
	d.mu.Unlock()
}

func (d *manual) Stop() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
}

func (d *manual) StartSession() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		d.controller.StartSession(session.StateForeground)
	}
}

func (d *manual) EndSession() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		d.controller.EndSession()
	}
}

// OnEvent only honors termination; foreground and background changes do
// not move session boundaries in manual mode.
func (d *manual) OnEvent(e Event) {
	if e == EventWillTerminate {
		d.controller.MarkTerminated()
		return
	}
	d.logger.Debug("Lifecycle event ignored in manual mode", zap.String("event", string(e)))
}
