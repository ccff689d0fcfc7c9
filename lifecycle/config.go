// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle // import "go.opentelemetry.io/mobile/lifecycle"

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects the driver variant.
type Mode string

const (
	// ModeAutomatic follows app lifecycle notifications and keeps a session
	// open at all times.
	ModeAutomatic Mode = "automatic"
	// ModeManual leaves session boundaries to the host application.
	ModeManual Mode = "manual"
)

const defaultGracePeriod = 5 * time.Second

var errNegativeGracePeriod = errors.New("grace_period must not be negative")

// Config defines the lifecycle driver.
type Config struct {
	Mode Mode `mapstructure:"mode"`

	// GracePeriod is how long after its start the first session of the
	// process may flip from background to foreground in place.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// NewDefaultConfig returns the default lifecycle configuration.
func NewDefaultConfig() Config {
	return Config{
		Mode:        ModeAutomatic,
		GracePeriod: defaultGracePeriod,
	}
}

// Validate checks if the configuration is valid.
func (cfg Config) Validate() error {
	switch cfg.Mode {
	case ModeAutomatic, ModeManual:
	default:
		return fmt.Errorf("unknown lifecycle mode %q", cfg.Mode)
	}
	if cfg.GracePeriod < 0 {
		return errNegativeGracePeriod
	}
	return nil
}
