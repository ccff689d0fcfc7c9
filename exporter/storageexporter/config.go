// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package storageexporter // import "go.opentelemetry.io/mobile/exporter/storageexporter"

import "errors"

const defaultSegmentCacheSize = 4

var errEmptyDirectory = errors.New("directory must be set")

// Config defines the on-disk storage.
type Config struct {
	// Directory holds one write-ahead log for batches and one for sessions.
	Directory string `mapstructure:"directory"`

	// SegmentCacheSize is the number of WAL segments kept in memory.
	SegmentCacheSize int `mapstructure:"segment_cache_size"`

	// NoSync skips fsync after writes. Tests use it; devices should not.
	NoSync bool `mapstructure:"no_sync"`
}

// Validate checks if the configuration is valid.
func (cfg Config) Validate() error {
	if cfg.Directory == "" {
		return errEmptyDirectory
	}
	return nil
}

func (cfg Config) segmentCacheSize() int {
	if cfg.SegmentCacheSize > 0 {
		return cfg.SegmentCacheSize
	}
	return defaultSegmentCacheSize
}
