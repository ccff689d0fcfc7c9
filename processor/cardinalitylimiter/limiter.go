// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cardinalitylimiter bounds how many events of each category are
// recorded within one session.
package cardinalitylimiter // import "go.opentelemetry.io/mobile/processor/cardinalitylimiter"

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/internal/obsreport"
	"go.opentelemetry.io/mobile/session"
	"go.opentelemetry.io/mobile/telemetry"
)

const customSpanCategory = "custom_span"

// Limiter admits events while the session budget of their category lasts.
// Counters only grow on admission, so a counter never exceeds its limit.
type Limiter struct {
	logger   *zap.Logger
	recorder *obsreport.Recorder

	// mu guards the fields below.
	mu            sync.Mutex
	limits        Config
	pending       *Config
	counts        map[string]uint32
	customSpans   uint32
	logCounts     map[telemetry.Severity]uint32
	lastSessionID string

	dropped atomic.Uint64
}

var _ session.Listener = (*Limiter)(nil)

// New returns a limiter enforcing cfg.
func New(cfg Config, logger *zap.Logger, recorder *obsreport.Recorder) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = obsreport.NewNop()
	}
	logger.Info("Cardinality limiter configured",
		zap.Any("categories", cfg.Categories),
		zap.Any("log_severity", cfg.LogSeverity))
	return &Limiter{
		logger:    logger,
		recorder:  recorder,
		limits:    cfg.Clone(),
		counts:    map[string]uint32{},
		logCounts: map[telemetry.Severity]uint32{},
	}
}

// ShouldAdmit reports whether one more event of category fits in the
// current session budget, and counts it if so.
func (l *Limiter) ShouldAdmit(category string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits.Categories[category]
	if !ok {
		return true
	}
	if l.counts[category] < limit {
		l.counts[category]++
		return true
	}
	l.drop(category)
	return false
}

// ShouldAdmitEvent is ShouldAdmit keyed by the event type.
func (l *Limiter) ShouldAdmitEvent(e telemetry.Event) bool {
	return l.ShouldAdmit(string(e.Type))
}

// ShouldCreateCustomSpan reports whether the application may record one more
// span in the current session.
func (l *Limiter) ShouldCreateCustomSpan() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limits.CustomSpans == nil {
		return true
	}
	if l.customSpans < *l.limits.CustomSpans {
		l.customSpans++
		return true
	}
	l.drop(customSpanCategory)
	return false
}

// ShouldCreateLog reports whether a log of the given type and severity fits
// in the current session budget. Logs the SDK emits on its own behalf, such
// as crash reports, are never limited.
func (l *Limiter) ShouldCreateLog(logType telemetry.LogType, severity telemetry.Severity) bool {
	if logType.Exempt() {
		return true
	}
	level := severity.Consolidated()

	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits.LogSeverity[level.String()]
	if !ok {
		return true
	}
	if l.logCounts[level] < limit {
		l.logCounts[level]++
		return true
	}
	l.drop("log_" + level.String())
	return false
}

// Count returns how many events of category were admitted this session.
func (l *Limiter) Count(category string) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if category == customSpanCategory {
		return l.customSpans
	}
	return l.counts[category]
}

// LogCount returns how many logs of the consolidated severity were admitted
// this session.
func (l *Limiter) LogCount(severity telemetry.Severity) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logCounts[severity.Consolidated()]
}

// Dropped returns how many events were rejected over the process lifetime.
func (l *Limiter) Dropped() uint64 {
	return l.dropped.Load()
}

// SetLimits replaces the budgets starting with the next session. The
// session in progress keeps the budgets it started with.
func (l *Limiter) SetLimits(cfg Config) {
	next := cfg.Clone()
	l.mu.Lock()
	l.pending = &next
	l.mu.Unlock()
}

// Reset clears every counter and applies pending limits.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

// SessionDidStart resets the counters when a session with a new identity
// starts. Repeated notifications for the same session are ignored.
func (l *Limiter) SessionDidStart(s session.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.ID == l.lastSessionID {
		return
	}
	l.lastSessionID = s.ID
	l.resetLocked()
}

func (l *Limiter) SessionDidEnd(session.Session) {}

func (l *Limiter) SessionUpdated(session.Session) {}

func (l *Limiter) resetLocked() {
	l.counts = map[string]uint32{}
	l.logCounts = map[telemetry.Severity]uint32{}
	l.customSpans = 0
	if l.pending != nil {
		l.limits = *l.pending
		l.pending = nil
		l.logger.Debug("Applied new cardinality limits",
			zap.Any("categories", l.limits.Categories),
			zap.Any("log_severity", l.limits.LogSeverity))
	}
}

func (l *Limiter) drop(category string) {
	l.dropped.Inc()
	l.recorder.ItemDropped(category)
}
