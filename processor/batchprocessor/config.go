// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package batchprocessor // import "go.opentelemetry.io/mobile/processor/batchprocessor"

import (
	"errors"
	"time"
)

var (
	errNegativeMaxItems = errors.New("max_items must not be negative")
	errNegativeMaxAge   = errors.New("max_age must not be negative")
)

// Limits bound a single batch.
type Limits struct {
	// MaxItems is the item count at which a batch closes. Zero is treated as
	// one: every item is handed off on its own.
	MaxItems int `mapstructure:"max_items"`

	// MaxAge is the age, measured from the oldest item, past which a batch
	// closes. Zero closes a batch as soon as it holds an item.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Validate checks if the limits are valid.
func (l Limits) Validate() error {
	if l.MaxItems < 0 {
		return errNegativeMaxItems
	}
	if l.MaxAge < 0 {
		return errNegativeMaxAge
	}
	return nil
}

func (l Limits) sanitize() Limits {
	if l.MaxItems < 1 {
		l.MaxItems = 1
	}
	if l.MaxAge < 0 {
		l.MaxAge = 0
	}
	return l
}
