// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRemote(t *testing.T) {
	base := Default()
	out, err := ApplyRemote(base, map[string]interface{}{
		"spans.max_items": "25",
		"spans.max_age":   2.5,
		"logs": map[string]interface{}{
			"max_age": "750ms",
		},
		"limits.categories.breadcrumb":        float64(7),
		"limits.log_severity.warning":         "0",
		"limits.custom_spans":                 int64(12),
		"session.background_sessions_enabled": "false",
		"something.else":                      true,
	})
	require.NoError(t, err)

	assert.Equal(t, 25, out.Spans.MaxItems)
	assert.Equal(t, 2500*time.Millisecond, out.Spans.MaxAge)
	assert.Equal(t, 750*time.Millisecond, out.Logs.MaxAge)
	assert.Equal(t, uint32(7), out.Limits.Categories["breadcrumb"])
	assert.Equal(t, uint32(80), out.Limits.Categories["tap"])
	assert.Equal(t, uint32(0), out.Limits.LogSeverity["warning"])
	assert.Equal(t, uint32(12), *out.Limits.CustomSpans)
	assert.False(t, out.Session.BackgroundSessionsEnabled)

	// The input is left untouched.
	assert.Equal(t, 1000, base.Spans.MaxItems)
	assert.Equal(t, uint32(100), base.Limits.Categories["breadcrumb"])
	assert.Equal(t, uint32(200), base.Limits.LogSeverity["warning"])
	assert.Equal(t, uint32(1500), *base.Limits.CustomSpans)
	assert.True(t, base.Session.BackgroundSessionsEnabled)
}

func TestApplyRemoteSkipsBadValues(t *testing.T) {
	out, err := ApplyRemote(Default(), map[string]interface{}{
		"spans.max_items":              "lots",
		"logs.max_items":               10,
		"limits.categories.breadcrumb": []string{"x"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "spans.max_items")
	assert.ErrorContains(t, err, "limits.categories.breadcrumb")
	assert.Equal(t, 1000, out.Spans.MaxItems)
	assert.Equal(t, 10, out.Logs.MaxItems)
	assert.Equal(t, uint32(100), out.Limits.Categories["breadcrumb"])
}

func TestApplyRemoteRejectsInvalidResult(t *testing.T) {
	base := Default()
	out, err := ApplyRemote(base, map[string]interface{}{
		"spans.max_items": -4,
	})
	require.Error(t, err)
	assert.Same(t, base, out)
}
