// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry // import "go.opentelemetry.io/mobile/telemetry"

import "strings"

// Severity of a log record, ordered from least to most severe.
type Severity int

const (
	SeverityTrace Severity = iota + 1
	SeverityDebug
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

var severityNames = map[Severity]string{
	SeverityTrace: "trace",
	SeverityDebug: "debug",
	SeverityInfo:  "info",
	SeverityWarn:  "warning",
	SeverityError: "error",
	SeverityFatal: "fatal",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// Consolidated folds a severity into one of the three buckets that log
// limits are expressed in: info, warning and error.
func (s Severity) Consolidated() Severity {
	switch {
	case s <= SeverityInfo:
		return SeverityInfo
	case s == SeverityWarn:
		return SeverityWarn
	default:
		return SeverityError
	}
}

// ParseSeverity is the inverse of Severity.String. Unknown names map to info.
func ParseSeverity(name string) Severity {
	name = strings.ToLower(strings.TrimSpace(name))
	for sev, n := range severityNames {
		if n == name {
			return sev
		}
	}
	if name == "warn" {
		return SeverityWarn
	}
	return SeverityInfo
}

// LogType distinguishes logs emitted by the application from the ones the
// SDK emits on its own behalf.
type LogType string

const (
	LogTypeDefault  LogType = "default"
	LogTypeInternal LogType = "internal"
	LogTypeCrash    LogType = "crash"
	LogTypeHang     LogType = "hang"
	LogTypeRawCrash LogType = "raw_crash"
)

// Exempt reports whether logs of this type bypass cardinality limits.
func (t LogType) Exempt() bool {
	switch t {
	case LogTypeInternal, LogTypeCrash, LogTypeHang, LogTypeRawCrash:
		return true
	}
	return false
}
