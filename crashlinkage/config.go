// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package crashlinkage // import "go.opentelemetry.io/mobile/crashlinkage"

import "errors"

const defaultHistorySize = 16

var errHistorySize = errors.New("history_size must be positive")

// Config defines the crash linker.
type Config struct {
	// HistorySize is the number of session snapshots kept for correlation.
	HistorySize int `mapstructure:"history_size"`
}

// NewDefaultConfig returns the default linker configuration.
func NewDefaultConfig() Config {
	return Config{HistorySize: defaultHistorySize}
}

// Validate checks if the configuration is valid.
func (cfg Config) Validate() error {
	if cfg.HistorySize <= 0 {
		return errHistorySize
	}
	return nil
}
