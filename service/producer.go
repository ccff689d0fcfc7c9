// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package service // import "go.opentelemetry.io/mobile/service"

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/config"
	"go.opentelemetry.io/mobile/crashlinkage"
	"go.opentelemetry.io/mobile/lifecycle"
	"go.opentelemetry.io/mobile/session"
	"go.opentelemetry.io/mobile/telemetry"
)

const (
	breadcrumbEventName = "breadcrumb"
	tapEventName        = "tap"
)

// CurrentSession returns a snapshot of the active session.
func (srv *Service) CurrentSession() (session.Session, bool) {
	return srv.controller.CurrentSession()
}

// AddSpan records a finished application span. It reports whether the span
// was accepted.
func (srv *Service) AddSpan(span telemetry.Span) bool {
	if !srv.state.Running() {
		return false
	}
	cur, ok := srv.controller.CurrentSession()
	if ok && srv.dropBackground(cur) {
		return false
	}
	if !srv.limiter.ShouldCreateCustomSpan() {
		return false
	}
	if span.ID == "" {
		span.ID = telemetry.NewID()
	}
	if span.StartTime.IsZero() {
		span.StartTime = srv.now()
	}
	if span.SessionID == "" && ok {
		span.SessionID = cur.ID
	}
	span.ProcessID = srv.process.ID
	srv.spans.Add(span)
	return true
}

// AddLog records a log. Logs of an exempt type bypass the per-session
// budget. It reports whether the log was accepted.
func (srv *Service) AddLog(log telemetry.Log) bool {
	if !srv.state.Running() {
		return false
	}
	if log.Type == "" {
		log.Type = telemetry.LogTypeDefault
	}
	if log.Severity == 0 {
		log.Severity = telemetry.SeverityInfo
	}
	cur, ok := srv.controller.CurrentSession()
	if ok && !log.Type.Exempt() && srv.dropBackground(cur) {
		return false
	}
	if !srv.limiter.ShouldCreateLog(log.Type, log.Severity) {
		return false
	}
	srv.addLog(log, cur.ID)
	return true
}

func (srv *Service) addLog(log telemetry.Log, sessionID string) {
	if log.ID == "" {
		log.ID = telemetry.NewID()
	}
	if log.Time.IsZero() {
		log.Time = srv.now()
	}
	if log.SessionID == "" {
		log.SessionID = sessionID
	}
	log.ProcessID = srv.process.ID
	srv.logs.Add(log)
}

// RecordEvent attaches e to the span of the current session, subject to the
// budget of its event type. Without a current session the event is dropped.
func (srv *Service) RecordEvent(e telemetry.Event) bool {
	if !srv.state.Running() {
		return false
	}
	cur, ok := srv.controller.CurrentSession()
	if !ok || srv.dropBackground(cur) {
		return false
	}
	if e.Type == "" {
		e.Type = telemetry.EventTypeCustom
	}
	if !srv.limiter.ShouldAdmitEvent(e) {
		return false
	}
	if e.Time.IsZero() {
		e.Time = srv.now()
	}
	srv.sessionLog.add(cur.ID, e)
	return true
}

// AddBreadcrumb records a breadcrumb on the current session.
func (srv *Service) AddBreadcrumb(message string) bool {
	return srv.RecordEvent(telemetry.Event{
		Name: breadcrumbEventName,
		Type: telemetry.EventTypeBreadcrumb,
		Attributes: []attribute.KeyValue{
			attribute.String("message", message),
		},
	})
}

// AddTap records a tap on a view at the given screen coordinates.
func (srv *Service) AddTap(target string, x, y float64) bool {
	return srv.RecordEvent(telemetry.Event{
		Name: tapEventName,
		Type: telemetry.EventTypeTap,
		Attributes: []attribute.KeyValue{
			attribute.String("view.name", target),
			attribute.String("tap.coords", strconv.FormatFloat(x, 'f', -1, 64)+","+strconv.FormatFloat(y, 'f', -1, 64)),
		},
	})
}

// OnLifecycleEvent forwards an app lifecycle notification to the driver.
func (srv *Service) OnLifecycleEvent(e lifecycle.Event) {
	srv.driver.OnEvent(e)
}

// StartSession ends the current session, if any, and starts a new one.
func (srv *Service) StartSession() {
	srv.driver.StartSession()
}

// EndSession ends the current session. In automatic mode a new session
// starts right away.
func (srv *Service) EndSession() {
	srv.driver.EndSession()
}

// ReportCrash links a fault payload to the session it happened in and
// records a crash log for it. Crash logs are never limited.
func (srv *Service) ReportCrash(ctx context.Context, p crashlinkage.Payload) crashlinkage.Linked {
	linked := srv.linker.Link(ctx, p)
	if !srv.state.Running() {
		return linked
	}
	at := linked.WindowEnd
	if at.IsZero() {
		at = linked.WindowStart
	}
	logType := telemetry.LogTypeCrash
	if linked.Kind == crashlinkage.KindHang {
		logType = telemetry.LogTypeHang
	}
	srv.addLog(telemetry.Log{
		Body:     string(linked.Kind),
		Severity: telemetry.SeverityFatal,
		Type:     logType,
		Time:     at,
		Attributes: []attribute.KeyValue{
			attribute.String("crash.id", linked.ID),
			attribute.Int("crash.signal", linked.Signal),
			attribute.String("crash.process_id", linked.ProcessID),
			attribute.Bool("crash.linked", linked.Linked),
		},
	}, linked.SessionID)
	return linked
}

// UpdateRemoteConfig applies a remote configuration document. Batch limits
// take effect with the next batch and cardinality budgets with the next
// session. When the document is invalid, the configuration in effect is
// kept and the error is returned.
func (srv *Service) UpdateRemoteConfig(remote map[string]interface{}) error {
	srv.cfgMu.Lock()
	defer srv.cfgMu.Unlock()

	next, err := config.ApplyRemote(srv.cfg, remote)
	if next == nil || next == srv.cfg {
		return err
	}
	srv.spans.SetLimits(next.Spans)
	srv.logs.SetLimits(next.Logs)
	srv.limiter.SetLimits(next.Limits)
	srv.backgroundEnabled.Store(next.Session.BackgroundSessionsEnabled)
	srv.controller.SetBackgroundSessionsEnabled(next.Session.BackgroundSessionsEnabled)
	srv.cfg = next
	srv.logger.Info("Remote configuration applied", zap.Int("keys", len(remote)))
	return err
}

// dropBackground reports whether telemetry of s is discarded because
// background sessions are disabled.
func (srv *Service) dropBackground(s session.Session) bool {
	return s.State == session.StateBackground && !srv.backgroundEnabled.Load()
}
