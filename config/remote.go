// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config // import "go.opentelemetry.io/mobile/config"

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/spf13/cast"
	"go.uber.org/multierr"

	"go.opentelemetry.io/mobile/processor/batchprocessor"
)

// ApplyRemote overlays loosely typed values fetched from a remote
// configuration endpoint on a copy of cfg. Keys are dotted paths and may
// also come as nested maps. Durations given as plain numbers are seconds.
// Values that cannot be converted are reported and skipped; the others are
// applied. Unknown keys are ignored.
//
// Supported keys:
//
//	spans.max_items, spans.max_age, logs.max_items, logs.max_age
//	limits.categories.<category>, limits.custom_spans, limits.log_severity.<severity>
//	session.background_sessions_enabled
func ApplyRemote(cfg *Config, remote map[string]interface{}) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(remote, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load remote configuration: %w", err)
	}

	out := *cfg
	out.Limits = cfg.Limits.Clone()

	var errs error
	for key, value := range k.All() {
		if err := applyKey(&out, key, value); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if err := out.Validate(); err != nil {
		return cfg, multierr.Append(errs, err)
	}
	return &out, errs
}

func applyKey(cfg *Config, key string, value interface{}) error {
	switch {
	case strings.HasPrefix(key, "spans."):
		return applyLimits(&cfg.Spans, strings.TrimPrefix(key, "spans."), value)
	case strings.HasPrefix(key, "logs."):
		return applyLimits(&cfg.Logs, strings.TrimPrefix(key, "logs."), value)
	case strings.HasPrefix(key, "limits.categories."):
		n, err := cast.ToUint32E(value)
		if err != nil {
			return err
		}
		if cfg.Limits.Categories == nil {
			cfg.Limits.Categories = map[string]uint32{}
		}
		cfg.Limits.Categories[strings.TrimPrefix(key, "limits.categories.")] = n
	case strings.HasPrefix(key, "limits.log_severity."):
		n, err := cast.ToUint32E(value)
		if err != nil {
			return err
		}
		if cfg.Limits.LogSeverity == nil {
			cfg.Limits.LogSeverity = map[string]uint32{}
		}
		cfg.Limits.LogSeverity[strings.TrimPrefix(key, "limits.log_severity.")] = n
	case key == "limits.custom_spans":
		n, err := cast.ToUint32E(value)
		if err != nil {
			return err
		}
		cfg.Limits.CustomSpans = &n
	case key == "session.background_sessions_enabled":
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		cfg.Session.BackgroundSessionsEnabled = b
	}
	return nil
}

func applyLimits(l *batchprocessor.Limits, field string, value interface{}) error {
	switch field {
	case "max_items":
		n, err := cast.ToIntE(value)
		if err != nil {
			return err
		}
		l.MaxItems = n
	case "max_age":
		d, err := toDuration(value)
		if err != nil {
			return err
		}
		l.MaxAge = d
	}
	return nil
}

// toDuration reads numbers, and strings holding a bare number, as seconds.
func toDuration(value interface{}) (time.Duration, error) {
	if s, ok := value.(string); ok {
		if secs, err := cast.ToFloat64E(strings.TrimSpace(s)); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return cast.ToDurationE(s)
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}
