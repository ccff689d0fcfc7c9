// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package internal // import "go.opentelemetry.io/mobile/cmd/sessioncore/internal"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"go.opentelemetry.io/mobile/crashlinkage"
	"go.opentelemetry.io/mobile/lifecycle"
	"go.opentelemetry.io/mobile/service"
	"go.opentelemetry.io/mobile/telemetry"
)

var errEmptyStep = errors.New("step has no action")

// script is a sequence of app activity replayed against a service.
type script struct {
	Steps []step `yaml:"steps"`
}

// step holds exactly one action.
type step struct {
	Event      string     `yaml:"event"`
	Session    string     `yaml:"session"`
	Span       string     `yaml:"span"`
	Log        string     `yaml:"log"`
	Severity   string     `yaml:"severity"`
	Breadcrumb string     `yaml:"breadcrumb"`
	Tap        string     `yaml:"tap"`
	Sleep      string     `yaml:"sleep"`
	Crash      *crashStep `yaml:"crash"`
	Flush      bool       `yaml:"flush"`
}

type crashStep struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	// Offset places the fault relative to the start of the current
	// session, or to the time of the step when there is none, e.g. -2s.
	Offset string `yaml:"offset"`
}

func loadScript(path string) (*script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	s := &script{}
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return s, nil
}

func (st step) validate() error {
	actions := 0
	for _, set := range []bool{
		st.Event != "", st.Session != "", st.Span != "", st.Log != "",
		st.Breadcrumb != "", st.Tap != "", st.Sleep != "", st.Crash != nil, st.Flush,
	} {
		if set {
			actions++
		}
	}
	switch {
	case actions == 0:
		return errEmptyStep
	case actions > 1:
		return fmt.Errorf("step has %d actions, expected one", actions)
	}
	if st.Event != "" {
		if _, err := lifecycle.ParseEvent(st.Event); err != nil {
			return err
		}
	}
	if st.Session != "" && st.Session != "start" && st.Session != "end" {
		return fmt.Errorf("unknown session action %q", st.Session)
	}
	if st.Sleep != "" {
		if _, err := time.ParseDuration(st.Sleep); err != nil {
			return err
		}
	}
	if st.Crash != nil && st.Crash.Offset != "" {
		if _, err := time.ParseDuration(st.Crash.Offset); err != nil {
			return err
		}
	}
	return nil
}

// run applies the step to srv. Rejected items are reported, not failed.
func (st step) run(ctx context.Context, srv *service.Service, report func(format string, args ...interface{})) error {
	switch {
	case st.Event != "":
		e, _ := lifecycle.ParseEvent(st.Event)
		srv.OnLifecycleEvent(e)
	case st.Session == "start":
		srv.StartSession()
	case st.Session == "end":
		srv.EndSession()
	case st.Span != "":
		now := time.Now()
		if !srv.AddSpan(telemetry.Span{Name: st.Span, StartTime: now, EndTime: now}) {
			report("span %q dropped", st.Span)
		}
	case st.Log != "":
		sev := telemetry.SeverityInfo
		if st.Severity != "" {
			sev = telemetry.ParseSeverity(st.Severity)
		}
		if !srv.AddLog(telemetry.Log{Body: st.Log, Severity: sev}) {
			report("log %q dropped", st.Log)
		}
	case st.Breadcrumb != "":
		if !srv.AddBreadcrumb(st.Breadcrumb) {
			report("breadcrumb %q dropped", st.Breadcrumb)
		}
	case st.Tap != "":
		if !srv.AddTap(st.Tap, 0, 0) {
			report("tap %q dropped", st.Tap)
		}
	case st.Sleep != "":
		d, _ := time.ParseDuration(st.Sleep)
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	case st.Crash != nil:
		var offset time.Duration
		if st.Crash.Offset != "" {
			offset, _ = time.ParseDuration(st.Crash.Offset)
		}
		id := st.Crash.ID
		if id == "" {
			id = telemetry.NewID()
		}
		base := time.Now()
		if cur, ok := srv.CurrentSession(); ok {
			base = cur.StartTime
		}
		linked := srv.ReportCrash(ctx, crashlinkage.Payload{
			ID:          id,
			Kind:        crashlinkage.Kind(st.Crash.Kind),
			WindowStart: base.Add(offset),
		})
		if linked.Linked {
			report("%s %s linked to session %s", linked.Kind, linked.ID, linked.SessionID)
		} else {
			report("%s %s not linked to any session", linked.Kind, linked.ID)
		}
	case st.Flush:
		return srv.Flush(ctx)
	}
	return nil
}
