// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the items produced by an instrumented application
// and buffered by the session core: spans, logs and span events.
package telemetry // import "go.opentelemetry.io/mobile/telemetry"

import (
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Item is anything that can be accumulated in a batch. The timestamp is the
// moment the item was produced and drives the age of the batch it lands in.
type Item interface {
	Timestamp() time.Time
}

// Kind identifies a telemetry stream.
type Kind string

const (
	KindSpan Kind = "span"
	KindLog  Kind = "log"
)

// EventType categorizes span events. Event types are the categories the
// cardinality limiter counts.
type EventType string

const (
	EventTypeBreadcrumb       EventType = "breadcrumb"
	EventTypeTap              EventType = "tap"
	EventTypePushNotification EventType = "push_notification"
	EventTypeLowPower         EventType = "low_power"
	EventTypeCustom           EventType = "custom"
)

// Event is a timestamped annotation attached to a span, most commonly to the
// session span.
type Event struct {
	Name       string
	Type       EventType
	Time       time.Time
	Attributes []attribute.KeyValue
}

// Timestamp implements Item.
func (e Event) Timestamp() time.Time {
	return e.Time
}

// Span is a finished or in-flight unit of traced work.
type Span struct {
	ID           string
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	Type         string
	StartTime    time.Time
	EndTime      time.Time
	Attributes   []attribute.KeyValue
	Events       []Event

	SessionID string
	ProcessID string
}

// Timestamp implements Item. A finished span is produced when it ends; an
// in-flight span has only its start time.
func (s Span) Timestamp() time.Time {
	if s.EndTime.IsZero() {
		return s.StartTime
	}
	return s.EndTime
}

// Log is a structured log record.
type Log struct {
	ID         string
	Body       string
	Severity   Severity
	Type       LogType
	Time       time.Time
	Attributes []attribute.KeyValue

	SessionID string
	ProcessID string
}

// Timestamp implements Item.
func (l Log) Timestamp() time.Time {
	return l.Time
}

// NewID returns a fresh random identifier for a span or log.
func NewID() string {
	return uuid.NewString()
}
