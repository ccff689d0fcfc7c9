// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package storageexporter // import "go.opentelemetry.io/mobile/exporter/storageexporter"

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"go.opentelemetry.io/mobile/session"
	"go.opentelemetry.io/mobile/telemetry"
)

type recordType string

const (
	recordBatch recordType = "batch"
	recordAck   recordType = "ack"
)

// Batch is a stored batch of telemetry items. Items hold the JSON encoding of
// the original slice.
type Batch struct {
	ID        string              `json:"id"`
	Kind      telemetry.Kind      `json:"kind"`
	ProcessID string              `json:"process_id"`
	CreatedAt time.Time           `json:"created_at"`
	Count     int                 `json:"count"`
	Items     jsoniter.RawMessage `json:"items"`
}

// itemRecord is one entry of the items log: a batch, or the acknowledgement
// that a batch was delivered.
type itemRecord struct {
	Type  recordType `json:"type"`
	Batch *Batch     `json:"batch,omitempty"`
	AckID string     `json:"ack_id,omitempty"`
}

// sessionRecord is the stored row of a session.
type sessionRecord struct {
	ID                string        `json:"id"`
	ProcessID         string        `json:"process_id"`
	State             session.State `json:"state"`
	TraceID           string        `json:"trace_id"`
	SpanID            string        `json:"span_id"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	LastHeartbeatTime time.Time     `json:"last_heartbeat_time"`
	ColdStart         bool          `json:"cold_start"`
	CleanExit         bool          `json:"clean_exit"`
	AppTerminated     bool          `json:"app_terminated"`
	CrashReportID     string        `json:"crash_report_id,omitempty"`
	ProcessStartTime  time.Time     `json:"process_start_time"`
}

func toRecord(s session.Session) sessionRecord {
	return sessionRecord{
		ID:                s.ID,
		ProcessID:         s.ProcessID,
		State:             s.State,
		TraceID:           s.TraceID,
		SpanID:            s.SpanID,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		LastHeartbeatTime: s.LastHeartbeatTime,
		ColdStart:         s.ColdStart,
		CleanExit:         s.CleanExit,
		AppTerminated:     s.AppTerminated,
		CrashReportID:     s.CrashReportID,
		ProcessStartTime:  s.ProcessStartTime,
	}
}

func (r sessionRecord) session() session.Session {
	return session.Session{
		ID:                r.ID,
		ProcessID:         r.ProcessID,
		State:             r.State,
		TraceID:           r.TraceID,
		SpanID:            r.SpanID,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		LastHeartbeatTime: r.LastHeartbeatTime,
		ColdStart:         r.ColdStart,
		CleanExit:         r.CleanExit,
		AppTerminated:     r.AppTerminated,
		CrashReportID:     r.CrashReportID,
		ProcessStartTime:  r.ProcessStartTime,
	}
}
