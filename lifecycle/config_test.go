// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "default",
			cfg:  NewDefaultConfig(),
		},
		{
			name: "manual without grace period",
			cfg:  Config{Mode: ModeManual},
		},
		{
			name:    "unknown mode",
			cfg:     Config{Mode: "sometimes"},
			wantErr: `unknown lifecycle mode "sometimes"`,
		},
		{
			name:    "empty mode",
			cfg:     Config{},
			wantErr: `unknown lifecycle mode ""`,
		},
		{
			name:    "negative grace period",
			cfg:     Config{Mode: ModeAutomatic, GracePeriod: -time.Second},
			wantErr: errNegativeGracePeriod.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestParseEvent(t *testing.T) {
	e, err := ParseEvent(" Became_Active ")
	assert.NoError(t, err)
	assert.Equal(t, EventBecameActive, e)

	e, err = ParseEvent("entered_background")
	assert.NoError(t, err)
	assert.Equal(t, EventEnteredBackground, e)

	_, err = ParseEvent("resigned")
	assert.EqualError(t, err, `unknown lifecycle event "resigned"`)
}
