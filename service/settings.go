// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package service // import "go.opentelemetry.io/mobile/service"

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/crashlinkage"
	"go.opentelemetry.io/mobile/exporter/retrysender"
	"go.opentelemetry.io/mobile/internal/processinfo"
	"go.opentelemetry.io/mobile/lifecycle"
	"go.opentelemetry.io/mobile/processor/batchprocessor"
	"go.opentelemetry.io/mobile/telemetry"
)

// Settings holds the host-provided dependencies of a Service.
type Settings struct {
	// Logger defaults to the logger described by the telemetry section of
	// the configuration.
	Logger *zap.Logger

	// Registerer receives the internal metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer

	// Process identifies the running process. Zero means the current one.
	Process processinfo.Info

	// Uploader delivers batches to the backend. Without one, batches are
	// only stored.
	Uploader retrysender.Uploader

	// CrashForwarder receives every crash payload after linking.
	CrashForwarder crashlinkage.Forwarder

	// StateProvider tells the automatic lifecycle driver whether the app
	// launched in the foreground.
	StateProvider lifecycle.StateProvider
}

// Option is an option to New.
type Option func(*options)

type options struct {
	now      func() time.Time
	spanSink batchprocessor.Sink[telemetry.Span]
	logSink  batchprocessor.Sink[telemetry.Log]
}

// WithClock replaces the clock of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithSinks replaces the storage and upload path of closed batches.
func WithSinks(spans batchprocessor.Sink[telemetry.Span], logs batchprocessor.Sink[telemetry.Log]) Option {
	return func(o *options) {
		o.spanSink = spans
		o.logSink = logs
	}
}
