// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityConsolidated(t *testing.T) {
	tests := []struct {
		in   Severity
		want Severity
	}{
		{SeverityTrace, SeverityInfo},
		{SeverityDebug, SeverityInfo},
		{SeverityInfo, SeverityInfo},
		{SeverityWarn, SeverityWarn},
		{SeverityError, SeverityError},
		{SeverityFatal, SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Consolidated())
		})
	}
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityWarn, ParseSeverity("warning"))
	assert.Equal(t, SeverityWarn, ParseSeverity(" WARN "))
	assert.Equal(t, SeverityError, ParseSeverity("error"))
	assert.Equal(t, SeverityInfo, ParseSeverity("nonsense"))
}

func TestLogTypeExempt(t *testing.T) {
	assert.False(t, LogTypeDefault.Exempt())
	assert.True(t, LogTypeInternal.Exempt())
	assert.True(t, LogTypeCrash.Exempt())
	assert.True(t, LogTypeHang.Exempt())
	assert.True(t, LogTypeRawCrash.Exempt())
}

func TestItemTimestamps(t *testing.T) {
	now := time.Unix(100, 0)
	assert.Equal(t, now, Span{StartTime: now}.Timestamp())
	assert.Equal(t, now.Add(time.Second), Span{StartTime: now, EndTime: now.Add(time.Second)}.Timestamp())
	assert.Equal(t, now, Log{Time: now}.Timestamp())
	assert.Equal(t, now, Event{Time: now}.Timestamp())
	assert.NotEqual(t, NewID(), NewID())
}
