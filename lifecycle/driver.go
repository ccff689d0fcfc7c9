// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle translates app lifecycle signals into session
// transitions.
package lifecycle // import "go.opentelemetry.io/mobile/lifecycle"

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/session"
)

// Event is a lifecycle signal delivered by the platform or the host app.
type Event string

const (
	EventBecameActive      Event = "became_active"
	EventEnteredBackground Event = "entered_background"
	EventWillTerminate     Event = "will_terminate"
)

// ParseEvent converts a name such as "became_active" to an Event.
func ParseEvent(name string) (Event, error) {
	e := Event(strings.ToLower(strings.TrimSpace(name)))
	switch e {
	case EventBecameActive, EventEnteredBackground, EventWillTerminate:
		return e, nil
	}
	return "", fmt.Errorf("unknown lifecycle event %q", name)
}

// Controller is the part of session.Controller a driver needs.
type Controller interface {
	CurrentSession() (session.Session, bool)
	StartSession(state session.State) session.Session
	EndSession() (session.Session, bool)
	UpdateState(state session.State) bool
	MarkTerminated() bool
}

var _ Controller = (*session.Controller)(nil)

// StateProvider reports whether the app is currently in the foreground.
// It is queried once, from Setup.
type StateProvider interface {
	AppState() session.State
}

// StateProviderFunc adapts a function to StateProvider.
type StateProviderFunc func() session.State

// AppState implements StateProvider.
func (f StateProviderFunc) AppState() session.State {
	return f()
}

// Driver turns lifecycle events and explicit start/end calls into session
// controller transitions. Drivers are inactive until Setup is called;
// events received before that only update the tracked app state.
type Driver interface {
	Setup()
	Stop()
	OnEvent(Event)
	StartSession()
	EndSession()
}

// Settings carries the ambient dependencies of a driver.
type Settings struct {
	Logger *zap.Logger
}

// Option is an option to New.
type Option func(*options)

type options struct {
	now   func() time.Time
	state StateProvider
}

// WithClock replaces the clock used to evaluate the grace period.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithStateProvider sets how the automatic driver learns the initial app
// state. Without one the app is assumed to launch in the background.
func WithStateProvider(p StateProvider) Option {
	return func(o *options) {
		o.state = p
	}
}

// New returns the driver variant selected by cfg.Mode.
func New(set Settings, cfg Config, controller Controller, opts ...Option) (Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		now:   time.Now,
		state: StateProviderFunc(func() session.State { return session.StateBackground }),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := set.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Lifecycle driver created",
		zap.String("mode", string(cfg.Mode)),
		zap.Duration("grace_period", cfg.GracePeriod))

	if cfg.Mode == ModeManual {
		return &manual{logger: logger, controller: controller}, nil
	}
	return &automatic{
		logger:      logger,
		controller:  controller,
		gracePeriod: cfg.GracePeriod,
		now:         o.now,
		provider:    o.state,
		state:       session.StateBackground,
	}, nil
}
