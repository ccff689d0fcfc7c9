// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks the current session of the process: one stateful
// span of app activity whose boundaries follow the app lifecycle.
package session // import "go.opentelemetry.io/mobile/session"

import (
	"time"
)

// State of the app while a session is recorded.
type State string

const (
	StateForeground State = "foreground"
	StateBackground State = "background"
	StateUnknown    State = "unknown"
)

// Session is a snapshot of one session. The controller only hands out
// copies; mutating one has no effect on the controller.
type Session struct {
	ID        string
	ProcessID string
	State     State

	// TraceID and SpanID correlate the session with the session span.
	TraceID string
	SpanID  string

	StartTime time.Time
	// EndTime is nil while the session is active and never changes once set.
	EndTime           *time.Time
	LastHeartbeatTime time.Time

	ColdStart     bool
	CleanExit     bool
	AppTerminated bool

	// CrashReportID is set after the fact when a crash report is linked to
	// the session.
	CrashReportID string

	ProcessStartTime time.Time
}

// IsActive reports whether the session has not ended.
func (s Session) IsActive() bool {
	return s.EndTime == nil
}

// WindowEnd is the last moment the session is known to have been alive:
// its end time, or its last heartbeat while unterminated.
func (s Session) WindowEnd() time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return s.LastHeartbeatTime
}

// Contains reports whether [start, end] falls within the session window.
func (s Session) Contains(start, end time.Time) bool {
	if end.Before(start) {
		start, end = end, start
	}
	return !start.Before(s.StartTime) && !end.After(s.WindowEnd())
}
