// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/mobile/session"

import (
	"errors"
	"time"
)

const defaultHeartbeatInterval = 5 * time.Second

var errNegativeHeartbeat = errors.New("heartbeat_interval must not be negative")

// Config defines the behavior of the controller.
type Config struct {
	// HeartbeatInterval is the period of heartbeat updates on the current
	// session. Zero disables the periodic heartbeat; heartbeats before
	// transitions still happen.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// BackgroundSessionsEnabled controls whether background sessions are
	// persisted. Background sessions are always tracked so the foreground
	// sessions around them keep correct boundaries.
	BackgroundSessionsEnabled bool `mapstructure:"background_sessions_enabled"`
}

// NewDefaultConfig returns the default controller configuration.
func NewDefaultConfig() Config {
	return Config{
		HeartbeatInterval:         defaultHeartbeatInterval,
		BackgroundSessionsEnabled: true,
	}
}

// Validate checks if the configuration is valid.
func (cfg Config) Validate() error {
	if cfg.HeartbeatInterval < 0 {
		return errNegativeHeartbeat
	}
	return nil
}
