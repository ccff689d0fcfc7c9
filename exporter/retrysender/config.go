// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package retrysender // import "go.opentelemetry.io/mobile/exporter/retrysender"

import (
	"errors"
	"time"

	"go.uber.org/multierr"
)

// QueueSettings defines configuration for queueing batches before upload.
type QueueSettings struct {
	// Enabled indicates whether to enqueue batches before uploading them.
	// When disabled, Send uploads on the calling goroutine.
	Enabled bool `mapstructure:"enabled"`
	// NumConsumers is the number of consumers from the queue.
	NumConsumers int `mapstructure:"num_consumers"`
	// QueueSize is the maximum number of batches allowed in queue at a given time.
	QueueSize int `mapstructure:"queue_size"`
}

// NewDefaultQueueSettings returns the default settings for QueueSettings.
func NewDefaultQueueSettings() QueueSettings {
	return QueueSettings{
		Enabled:      true,
		NumConsumers: 2,
		// Batches are also on disk; the queue only has to absorb a short
		// outage before the oldest ones are dropped and left to recovery.
		QueueSize: 100,
	}
}

// RetrySettings defines configuration for retrying batches in case of upload failure.
// The current supported strategy is exponential backoff.
type RetrySettings struct {
	// Enabled indicates whether to retry uploads in case of failure.
	Enabled bool `mapstructure:"enabled"`
	// InitialInterval the time to wait after the first failure before retrying.
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	// MaxInterval is the upper bound on backoff interval.
	MaxInterval time.Duration `mapstructure:"max_interval"`
	// MaxElapsedTime is the maximum amount of time (including retries) spent
	// trying to upload a batch. Once this value is reached, the batch is
	// dropped from memory.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time"`
}

// NewDefaultRetrySettings returns the default settings for RetrySettings.
func NewDefaultRetrySettings() RetrySettings {
	return RetrySettings{
		Enabled:         true,
		InitialInterval: 5 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// Config groups queue and retry settings.
type Config struct {
	Queue QueueSettings `mapstructure:"sending_queue"`
	Retry RetrySettings `mapstructure:"retry_on_failure"`
}

// NewDefaultConfig returns the default sender configuration.
func NewDefaultConfig() Config {
	return Config{
		Queue: NewDefaultQueueSettings(),
		Retry: NewDefaultRetrySettings(),
	}
}

var (
	errQueueSize       = errors.New("sending_queue.queue_size must be positive")
	errNumConsumers    = errors.New("sending_queue.num_consumers must be positive")
	errInitialInterval = errors.New("retry_on_failure.initial_interval must be positive")
	errMaxInterval     = errors.New("retry_on_failure.max_interval must not be less than initial_interval")
	errMaxElapsedTime  = errors.New("retry_on_failure.max_elapsed_time must not be negative")
)

// Validate checks if the configuration is valid.
func (cfg Config) Validate() error {
	var errs error
	if cfg.Queue.Enabled {
		if cfg.Queue.QueueSize <= 0 {
			errs = multierr.Append(errs, errQueueSize)
		}
		if cfg.Queue.NumConsumers <= 0 {
			errs = multierr.Append(errs, errNumConsumers)
		}
	}
	if cfg.Retry.Enabled {
		if cfg.Retry.InitialInterval <= 0 {
			errs = multierr.Append(errs, errInitialInterval)
		}
		if cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
			errs = multierr.Append(errs, errMaxInterval)
		}
		if cfg.Retry.MaxElapsedTime < 0 {
			errs = multierr.Append(errs, errMaxElapsedTime)
		}
	}
	return errs
}
