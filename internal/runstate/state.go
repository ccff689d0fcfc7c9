// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package runstate tracks whether a component with a Start/Shutdown pair is
// currently running.
package runstate // import "go.opentelemetry.io/mobile/internal/runstate"

import "go.uber.org/atomic"

const (
	stopped int32 = iota
	running
)

// State is safe for concurrent use. The zero value is stopped.
type State struct {
	current atomic.Int32
}

// Start switches to running and reports whether this call did the switch.
func (s *State) Start() bool {
	return s.current.CompareAndSwap(stopped, running)
}

// Stop switches to stopped and reports whether this call did the switch.
func (s *State) Stop() bool {
	return s.current.CompareAndSwap(running, stopped)
}

// Running reports the current state.
func (s *State) Running() bool {
	return s.current.Load() == running
}
