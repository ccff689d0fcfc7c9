// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config aggregates the configuration of every component of the
// session core.
package config // import "go.opentelemetry.io/mobile/config"

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.opentelemetry.io/mobile/crashlinkage"
	"go.opentelemetry.io/mobile/exporter/retrysender"
	"go.opentelemetry.io/mobile/exporter/storageexporter"
	"go.opentelemetry.io/mobile/lifecycle"
	"go.opentelemetry.io/mobile/processor/batchprocessor"
	"go.opentelemetry.io/mobile/processor/cardinalitylimiter"
	"go.opentelemetry.io/mobile/session"
)

const (
	defaultSpanBatchSize = 1000
	defaultLogBatchSize  = 50
	defaultBatchAge      = 5 * time.Second
)

// Config is the configuration of the whole core.
type Config struct {
	Spans        batchprocessor.Limits     `mapstructure:"spans"`
	Logs         batchprocessor.Limits     `mapstructure:"logs"`
	Limits       cardinalitylimiter.Config `mapstructure:"limits"`
	Session      session.Config            `mapstructure:"session"`
	Lifecycle    lifecycle.Config          `mapstructure:"lifecycle"`
	CrashLinkage crashlinkage.Config       `mapstructure:"crash_linkage"`
	Storage      StorageConfig             `mapstructure:"storage"`
	Upload       retrysender.Config        `mapstructure:"upload"`
	Telemetry    TelemetryConfig           `mapstructure:"telemetry"`
}

// StorageConfig enables the on-disk store.
type StorageConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	storageexporter.Config `mapstructure:",squash"`
}

// TelemetryConfig defines the logger of the core itself.
type TelemetryConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		Spans:        batchprocessor.Limits{MaxItems: defaultSpanBatchSize, MaxAge: defaultBatchAge},
		Logs:         batchprocessor.Limits{MaxItems: defaultLogBatchSize, MaxAge: defaultBatchAge},
		Limits:       cardinalitylimiter.NewDefaultConfig(),
		Session:      session.NewDefaultConfig(),
		Lifecycle:    lifecycle.NewDefaultConfig(),
		CrashLinkage: crashlinkage.NewDefaultConfig(),
		Upload:       retrysender.NewDefaultConfig(),
		Telemetry:    TelemetryConfig{Level: "info"},
	}
}

// Validate checks every section and reports all problems at once.
func (cfg *Config) Validate() error {
	var errs error
	check := func(section string, err error) {
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	check("spans", cfg.Spans.Validate())
	check("logs", cfg.Logs.Validate())
	check("limits", cfg.Limits.Validate())
	check("session", cfg.Session.Validate())
	check("lifecycle", cfg.Lifecycle.Validate())
	check("crash_linkage", cfg.CrashLinkage.Validate())
	if cfg.Storage.Enabled {
		check("storage", cfg.Storage.Validate())
	}
	check("upload", cfg.Upload.Validate())
	_, err := zapcore.ParseLevel(cfg.Telemetry.Level)
	check("telemetry", err)
	return errs
}

// NewLogger builds the logger described by the telemetry section.
func (t TelemetryConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(t.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if t.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
