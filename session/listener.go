// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/mobile/session"

import "context"

// Listener is notified of session transitions, after the controller has
// committed them. Listeners run on the goroutine performing the transition
// and must not start or end sessions themselves.
type Listener interface {
	SessionDidStart(Session)
	// SessionDidEnd receives the final snapshot, with EndTime set.
	SessionDidEnd(Session)
	// SessionUpdated is called on state flips, termination and heartbeats.
	SessionUpdated(Session)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	OnStart  func(Session)
	OnEnd    func(Session)
	OnUpdate func(Session)
}

var _ Listener = ListenerFuncs{}

func (f ListenerFuncs) SessionDidStart(s Session) {
	if f.OnStart != nil {
		f.OnStart(s)
	}
}

func (f ListenerFuncs) SessionDidEnd(s Session) {
	if f.OnEnd != nil {
		f.OnEnd(s)
	}
}

func (f ListenerFuncs) SessionUpdated(s Session) {
	if f.OnUpdate != nil {
		f.OnUpdate(s)
	}
}

// Store persists session snapshots, one row per session keyed by ID. The
// latest upsert wins.
type Store interface {
	UpsertSession(ctx context.Context, s Session) error
}

type nopStore struct{}

func (nopStore) UpsertSession(context.Context, Session) error { return nil }
