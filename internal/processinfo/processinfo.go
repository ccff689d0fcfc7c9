// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package processinfo identifies the running process. The identifier is
// random per launch so telemetry left behind by a dead process can be told
// apart from telemetry of the current one even when the OS reuses pids.
package processinfo // import "go.opentelemetry.io/mobile/internal/processinfo"

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
)

// Info describes the current process.
type Info struct {
	ID        string
	PID       int
	StartTime time.Time
}

// Uptime returns how long the process had been running at now.
func (i Info) Uptime(now time.Time) time.Duration {
	if i.StartTime.IsZero() || now.Before(i.StartTime) {
		return 0
	}
	return now.Sub(i.StartTime)
}

// current is resolved once; the process identity never changes.
var current = resolve(time.Now)

// Current returns the identity of this process.
func Current() Info {
	return current
}

func resolve(now func() time.Time) Info {
	pid := os.Getpid()
	info := Info{
		ID:        uuid.NewString(),
		PID:       pid,
		StartTime: now(),
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return info
	}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		info.StartTime = time.UnixMilli(ms)
	}
	return info
}
