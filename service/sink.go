// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package service // import "go.opentelemetry.io/mobile/service"

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/exporter/retrysender"
	"go.opentelemetry.io/mobile/exporter/storageexporter"
	"go.opentelemetry.io/mobile/processor/batchprocessor"
	"go.opentelemetry.io/mobile/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newSink picks the path of closed batches: store then upload, store only,
// upload only, or drop when neither is configured.
func newSink[T any](srv *Service, kind telemetry.Kind) batchprocessor.Sink[T] {
	switch {
	case srv.storage != nil && srv.sender != nil:
		return storageexporter.NewSink[T](srv.storage, kind, func(ctx context.Context, b storageexporter.Batch) error {
			return srv.sender.Send(ctx, requestFor(b))
		})
	case srv.storage != nil:
		return storageexporter.NewSink[T](srv.storage, kind, nil)
	case srv.sender != nil:
		return batchprocessor.SinkFunc[T](func(ctx context.Context, items []T) error {
			payload, err := json.Marshal(items)
			if err != nil {
				return err
			}
			return srv.sender.Send(ctx, retrysender.Request{
				ID:      telemetry.NewID(),
				Kind:    kind,
				Count:   len(items),
				Payload: payload,
			})
		})
	default:
		return batchprocessor.SinkFunc[T](func(_ context.Context, items []T) error {
			srv.logger.Debug("No storage or upload configured, dropping batch",
				zap.String("kind", string(kind)),
				zap.Int("dropped_items", len(items)))
			return nil
		})
	}
}

func requestFor(b storageexporter.Batch) retrysender.Request {
	return retrysender.Request{
		ID:      b.ID,
		Kind:    b.Kind,
		Count:   b.Count,
		Payload: b.Items,
	}
}
