// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package obsreport holds the internal diagnostics counters of the session
// core. Nothing here is sent to the backend; the counters exist so a host
// can see how much telemetry was dropped and why.
package obsreport // import "go.opentelemetry.io/mobile/internal/obsreport"

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "sessioncore"

// Trigger names the reason a batch was handed to the sink.
type Trigger string

const (
	TriggerSize     Trigger = "size"
	TriggerTimeout  Trigger = "timeout"
	TriggerForced   Trigger = "forced"
	TriggerShutdown Trigger = "shutdown"
)

// Recorder records diagnostics. All methods are safe for concurrent use.
type Recorder struct {
	batchesSent     *prometheus.CounterVec
	itemsSent       *prometheus.CounterVec
	rejectedAdds    *prometheus.CounterVec
	itemsDropped    *prometheus.CounterVec
	crashPayloads   *prometheus.CounterVec
	sessionsStarted *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := newRecorder()
	var errs error
	for _, c := range r.collectors() {
		errs = multierr.Append(errs, reg.Register(c))
	}
	if errs != nil {
		return nil, errs
	}
	return r, nil
}

// NewNop returns a Recorder whose collectors are not registered anywhere.
func NewNop() *Recorder {
	return newRecorder()
}

func newRecorder() *Recorder {
	return &Recorder{
		batchesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_sent_total",
			Help:      "Number of batches handed to the sink, by telemetry kind and trigger.",
		}, []string{"kind", "trigger"}),
		itemsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_sent_total",
			Help:      "Number of items handed to the sink, by telemetry kind.",
		}, []string{"kind"}),
		rejectedAdds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rejected_adds_total",
			Help:      "Number of adds rejected because the batch had already closed.",
		}, []string{"kind"}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_dropped_total",
			Help:      "Number of items dropped by cardinality limits, by category.",
		}, []string{"category"}),
		crashPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crash_payloads_total",
			Help:      "Number of crash and hang payloads, by linkage result.",
		}, []string{"kind", "result"}),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Number of sessions started, by initial state.",
		}, []string{"state"}),
	}
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.batchesSent,
		r.itemsSent,
		r.rejectedAdds,
		r.itemsDropped,
		r.crashPayloads,
		r.sessionsStarted,
	}
}

func (r *Recorder) BatchSent(kind string, trigger Trigger, items int) {
	r.batchesSent.WithLabelValues(kind, string(trigger)).Inc()
	r.itemsSent.WithLabelValues(kind).Add(float64(items))
}

func (r *Recorder) RejectedAdd(kind string) {
	r.rejectedAdds.WithLabelValues(kind).Inc()
}

func (r *Recorder) ItemDropped(category string) {
	r.itemsDropped.WithLabelValues(category).Inc()
}

// CrashPayload records the outcome of a crash linkage attempt.
func (r *Recorder) CrashPayload(kind string, linked bool) {
	result := "unlinked"
	if linked {
		result = "linked"
	}
	r.crashPayloads.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) SessionStarted(state string) {
	r.sessionsStarted.WithLabelValues(state).Inc()
}
