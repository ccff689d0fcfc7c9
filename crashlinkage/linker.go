// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package crashlinkage correlates crash and hang reports, which arrive late
// and without a session reference, with the session that was active when
// the fault happened.
package crashlinkage // import "go.opentelemetry.io/mobile/crashlinkage"

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/internal/obsreport"
	"go.opentelemetry.io/mobile/session"
)

// Kind of fault payload.
type Kind string

const (
	KindCrash Kind = "crash"
	KindHang  Kind = "hang"
)

// Payload is a fault report delivered by an external capture source.
type Payload struct {
	ID     string
	Kind   Kind
	Data   []byte
	Signal int

	// WindowStart and WindowEnd bound when the fault happened. A zero
	// WindowEnd means the fault time is known exactly.
	WindowStart time.Time
	WindowEnd   time.Time
}

// Linked is a payload together with the result of the correlation.
type Linked struct {
	Payload
	SessionID string
	ProcessID string
	Linked    bool
}

// Forwarder receives every payload, linked or not.
type Forwarder interface {
	ForwardCrash(ctx context.Context, l Linked) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(ctx context.Context, l Linked) error

// ForwardCrash implements Forwarder.
func (f ForwarderFunc) ForwardCrash(ctx context.Context, l Linked) error {
	return f(ctx, l)
}

// CrashRecorder stores the crash report id on a session that may already
// have ended.
type CrashRecorder interface {
	SetCrashReportID(ctx context.Context, sessionID, reportID string) error
}

// Settings carries the ambient dependencies of a Linker.
type Settings struct {
	Logger   *zap.Logger
	Recorder *obsreport.Recorder
}

// Option is an option to NewLinker.
type Option func(*Linker)

// WithCrashRecorder makes the linker record crash report ids on linked
// sessions.
func WithCrashRecorder(r CrashRecorder) Option {
	return func(l *Linker) {
		l.crashes = r
	}
}

// Linker keeps recent session snapshots and links fault payloads to them.
// It learns about sessions passively, as a session.Listener.
type Linker struct {
	logger    *zap.Logger
	recorder  *obsreport.Recorder
	forwarder Forwarder
	crashes   CrashRecorder
	size      int

	mu sync.Mutex
	// history is ordered by start time, most recent first.
	history []session.Session
}

var _ session.Listener = (*Linker)(nil)

// NewLinker creates a linker. A nil forwarder discards payloads after
// linking.
func NewLinker(set Settings, cfg Config, fwd Forwarder, opts ...Option) *Linker {
	if set.Logger == nil {
		set.Logger = zap.NewNop()
	}
	if set.Recorder == nil {
		set.Recorder = obsreport.NewNop()
	}
	if fwd == nil {
		fwd = ForwarderFunc(func(context.Context, Linked) error { return nil })
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}
	l := &Linker{
		logger:    set.Logger,
		recorder:  set.Recorder,
		forwarder: fwd,
		size:      size,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Linker) SessionDidStart(s session.Session) { l.remember(s) }

func (l *Linker) SessionDidEnd(s session.Session) { l.remember(s) }

func (l *Linker) SessionUpdated(s session.Session) { l.remember(s) }

// Seed adds sessions known from storage, typically those of previous
// processes whose crash reports are delivered on the next launch.
func (l *Linker) Seed(sessions ...session.Session) {
	for _, s := range sessions {
		l.remember(s)
	}
}

// LastSession returns the most recently started session the linker knows.
func (l *Linker) LastSession() (session.Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) == 0 {
		return session.Session{}, false
	}
	return l.history[0], true
}

// Link correlates p with a known session and forwards the result. A miss is
// not an error: the payload is forwarded unlinked.
func (l *Linker) Link(ctx context.Context, p Payload) Linked {
	out := Linked{Payload: p}
	if s, ok := l.find(p.WindowStart, p.windowEnd()); ok {
		out.SessionID = s.ID
		out.ProcessID = s.ProcessID
		out.Linked = true
	}
	if p.Kind == "" {
		out.Kind = KindCrash
	}
	l.recorder.CrashPayload(string(out.Kind), out.Linked)

	if out.Linked && out.Kind == KindCrash && l.crashes != nil && p.ID != "" {
		if err := l.crashes.SetCrashReportID(ctx, out.SessionID, p.ID); err != nil {
			l.logger.Warn("Failed to record crash report on session",
				zap.String("session_id", out.SessionID), zap.Error(err))
		}
	}
	if err := l.forwarder.ForwardCrash(ctx, out); err != nil {
		l.logger.Warn("Failed to forward crash payload",
			zap.String("payload_id", p.ID), zap.Error(err))
	}
	l.logger.Debug("Crash payload processed",
		zap.String("payload_id", p.ID),
		zap.String("kind", string(out.Kind)),
		zap.Bool("linked", out.Linked),
		zap.String("session_id", out.SessionID))
	return out
}

func (p Payload) windowEnd() time.Time {
	if p.WindowEnd.IsZero() {
		return p.WindowStart
	}
	return p.WindowEnd
}

func (l *Linker) find(start, end time.Time) (session.Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.history {
		if s.Contains(start, end) {
			return s, true
		}
	}
	return session.Session{}, false
}

func (l *Linker) remember(s session.Session) {
	if s.ID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.history {
		if l.history[i].ID == s.ID {
			// An ended snapshot is final.
			if l.history[i].EndTime != nil && s.EndTime == nil {
				return
			}
			l.history[i] = s
			return
		}
	}
	l.history = append(l.history, s)
	sort.SliceStable(l.history, func(i, j int) bool {
		return l.history[i].StartTime.After(l.history[j].StartTime)
	})
	if len(l.history) > l.size {
		l.history = l.history[:l.size]
	}
}
