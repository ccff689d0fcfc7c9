// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package retrysender // import "go.opentelemetry.io/mobile/exporter/retrysender"

import (
	"errors"
	"time"
)

// permanent is an error that will always be returned if its source receives
// the same inputs.
type permanent struct {
	err error
}

// NewPermanent wraps an error to indicate that it is a permanent error, i.e.
// retrying the upload will not help.
func NewPermanent(err error) error {
	return permanent{err: err}
}

func (p permanent) Error() string {
	return "Permanent error: " + p.err.Error()
}

func (p permanent) Unwrap() error {
	return p.err
}

// IsPermanent checks if an error was wrapped with the NewPermanent function.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.As(err, &permanent{})
}

type throttleRetry struct {
	err   error
	delay time.Duration
}

// NewThrottleRetry returns an error telling the sender to wait at least delay
// before the next attempt, as when a backend answers with Retry-After.
func NewThrottleRetry(err error, delay time.Duration) error {
	return throttleRetry{err: err, delay: delay}
}

func (t throttleRetry) Error() string {
	return "Throttle (" + t.delay.String() + "), error: " + t.err.Error()
}

func (t throttleRetry) Unwrap() error {
	return t.err
}
