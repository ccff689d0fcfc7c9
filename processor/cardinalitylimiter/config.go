// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cardinalitylimiter // import "go.opentelemetry.io/mobile/processor/cardinalitylimiter"

import (
	"fmt"

	"go.opentelemetry.io/mobile/telemetry"
)

const (
	defaultBreadcrumbLimit = 100
	defaultTapLimit        = 80
	defaultCustomSpanLimit = 1500
	defaultInfoLogLimit    = 100
	defaultWarningLogLimit = 200
	defaultErrorLogLimit   = 500
)

// Config defines the per-session budgets. A category without an entry is
// unlimited; an entry of zero rejects every event of that category.
type Config struct {
	// Categories maps an event type (breadcrumb, tap, ...) to the number of
	// events of that type admitted per session.
	Categories map[string]uint32 `mapstructure:"categories"`

	// CustomSpans is the number of spans the application may create per
	// session. Nil means unlimited.
	CustomSpans *uint32 `mapstructure:"custom_spans"`

	// LogSeverity maps a consolidated severity (info, warning, error) to the
	// number of logs of that severity admitted per session.
	LogSeverity map[string]uint32 `mapstructure:"log_severity"`
}

// NewDefaultConfig returns the budgets applied when nothing is configured.
func NewDefaultConfig() Config {
	customSpans := uint32(defaultCustomSpanLimit)
	return Config{
		Categories: map[string]uint32{
			string(telemetry.EventTypeBreadcrumb): defaultBreadcrumbLimit,
			string(telemetry.EventTypeTap):        defaultTapLimit,
		},
		CustomSpans: &customSpans,
		LogSeverity: map[string]uint32{
			telemetry.SeverityInfo.String():  defaultInfoLogLimit,
			telemetry.SeverityWarn.String():  defaultWarningLogLimit,
			telemetry.SeverityError.String(): defaultErrorLogLimit,
		},
	}
}

// Validate checks if the configuration is valid.
func (cfg Config) Validate() error {
	for name := range cfg.LogSeverity {
		sev := telemetry.ParseSeverity(name)
		if sev.String() != name {
			return fmt.Errorf("log_severity: unknown severity %q", name)
		}
		if sev != sev.Consolidated() {
			return fmt.Errorf("log_severity: %q is not one of info, warning, error", name)
		}
	}
	for name := range cfg.Categories {
		if name == "" {
			return fmt.Errorf("categories: empty category name")
		}
	}
	return nil
}

// Clone returns a deep copy of cfg.
func (cfg Config) Clone() Config {
	out := Config{
		Categories:  make(map[string]uint32, len(cfg.Categories)),
		LogSeverity: make(map[string]uint32, len(cfg.LogSeverity)),
	}
	for k, v := range cfg.Categories {
		out.Categories[k] = v
	}
	for k, v := range cfg.LogSeverity {
		out.LogSeverity[k] = v
	}
	if cfg.CustomSpans != nil {
		v := *cfg.CustomSpans
		out.CustomSpans = &v
	}
	return out
}
