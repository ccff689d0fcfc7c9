// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package storageexporter // import "go.opentelemetry.io/mobile/exporter/storageexporter"

import (
	"context"

	"go.opentelemetry.io/mobile/processor/batchprocessor"
	"go.opentelemetry.io/mobile/telemetry"
)

// BatchConsumer receives batches once they are stored.
type BatchConsumer func(ctx context.Context, b Batch) error

// NewSink returns a batch sink that stores every batch of the given kind in e
// and then hands the stored batch to next, if next is not nil. A batch that
// could not be stored is not handed on.
func NewSink[T any](e *Exporter, kind telemetry.Kind, next BatchConsumer) batchprocessor.Sink[T] {
	return batchprocessor.SinkFunc[T](func(ctx context.Context, items []T) error {
		b, err := e.Append(ctx, kind, items, len(items))
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return next(ctx, b)
	})
}
