// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/mobile/session"

import "time"

// startHeartbeat must be called with transitionMu held.
func (c *Controller) startHeartbeat(sessionID string) {
	if c.cfg.HeartbeatInterval <= 0 || c.shutdown {
		return
	}
	stopC := make(chan struct{})
	c.heartbeatC = stopC

	c.goroutines.Add(1)
	go func() {
		defer c.goroutines.Done()
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopC:
				return
			case <-ticker.C:
				c.heartbeatFor(sessionID)
			}
		}
	}()
}

// stopHeartbeat must be called with transitionMu held. It does not wait for
// the heartbeat goroutine, which may itself be waiting on transitionMu.
func (c *Controller) stopHeartbeat() {
	if c.heartbeatC != nil {
		close(c.heartbeatC)
		c.heartbeatC = nil
	}
}

// heartbeatFor refreshes the session only if it is still the current one; a
// tick racing with the end of its session is dropped.
func (c *Controller) heartbeatFor(sessionID string) {
	c.updateIf(func(s Session) bool { return s.ID == sessionID }, func(*Session) {})
}
