// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package service // import "go.opentelemetry.io/mobile/service"

import (
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"go.opentelemetry.io/mobile/session"
	"go.opentelemetry.io/mobile/telemetry"
)

const (
	sessionSpanName = "session"
	sessionSpanType = "ux.session"
)

// sessionSpans collects the events recorded during the current session and
// emits them as one span when the session ends.
type sessionSpans struct {
	srv *Service

	mu        sync.Mutex
	sessionID string
	events    []telemetry.Event
}

var _ session.Listener = (*sessionSpans)(nil)

func newSessionSpans(srv *Service) *sessionSpans {
	return &sessionSpans{srv: srv}
}

// add appends e to the events of sessionID.
func (ss *sessionSpans) add(sessionID string, e telemetry.Event) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.sessionID != sessionID {
		ss.sessionID = sessionID
		ss.events = nil
	}
	ss.events = append(ss.events, e)
}

// pending returns a copy of the events recorded for sessionID so far.
func (ss *sessionSpans) pending(sessionID string) []telemetry.Event {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.sessionID != sessionID {
		return nil
	}
	return append([]telemetry.Event(nil), ss.events...)
}

func (ss *sessionSpans) SessionDidStart(s session.Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.sessionID != s.ID {
		ss.sessionID = s.ID
		ss.events = nil
	}
}

func (ss *sessionSpans) SessionDidEnd(s session.Session) {
	ss.mu.Lock()
	var events []telemetry.Event
	if ss.sessionID == s.ID {
		events = ss.events
		ss.sessionID = ""
		ss.events = nil
	}
	ss.mu.Unlock()

	if ss.srv.dropBackground(s) {
		return
	}
	ss.srv.spans.Add(sessionSpan(s, events))
}

func (ss *sessionSpans) SessionUpdated(session.Session) {}

func sessionSpan(s session.Session, events []telemetry.Event) telemetry.Span {
	return telemetry.Span{
		ID:        telemetry.NewID(),
		TraceID:   s.TraceID,
		SpanID:    s.SpanID,
		Name:      sessionSpanName,
		Type:      sessionSpanType,
		StartTime: s.StartTime,
		EndTime:   s.WindowEnd(),
		Attributes: []attribute.KeyValue{
			attribute.String("session.state", string(s.State)),
			attribute.Bool("session.cold_start", s.ColdStart),
			attribute.Bool("session.clean_exit", s.CleanExit),
			attribute.Bool("session.app_terminated", s.AppTerminated),
		},
		Events:    events,
		SessionID: s.ID,
		ProcessID: s.ProcessID,
	}
}
