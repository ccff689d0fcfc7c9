// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrysender uploads stored batches with a bounded queue and
// exponential backoff. Retrying is the sink's job: the batch scheduler hands
// a batch off once and forgets it.
package retrysender // import "go.opentelemetry.io/mobile/exporter/retrysender"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/internal/runstate"
	"go.opentelemetry.io/mobile/telemetry"
)

var (
	errQueueFull  = errors.New("sending queue is full")
	errNotRunning = errors.New("sender is not running")
)

// Request is one batch ready for upload.
type Request struct {
	ID      string
	Kind    telemetry.Kind
	Count   int
	Payload []byte
}

// Uploader delivers a request to the backend.
type Uploader interface {
	Upload(ctx context.Context, req Request) error
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, req Request) error

// Upload implements Uploader.
func (f UploaderFunc) Upload(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Settings carries the ambient dependencies of a Sender.
type Settings struct {
	Logger *zap.Logger
	// OnDelivered is called after a request was uploaded.
	OnDelivered func(ctx context.Context, req Request)
}

// Sender uploads requests in the background.
type Sender struct {
	logger      *zap.Logger
	cfg         Config
	uploader    Uploader
	onDelivered func(context.Context, Request)

	mu     sync.Mutex // mu protects queue against send after close.
	queue  chan Request
	closed bool

	stopCh     chan struct{}
	goroutines sync.WaitGroup
	state      runstate.State
}

// New creates a sender.
func New(set Settings, cfg Config, uploader Uploader) *Sender {
	logger := set.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onDelivered := set.OnDelivered
	if onDelivered == nil {
		onDelivered = func(context.Context, Request) {}
	}
	size := cfg.Queue.QueueSize
	if size < 0 {
		size = 0
	}
	return &Sender{
		logger:      logger,
		cfg:         cfg,
		uploader:    uploader,
		onDelivered: onDelivered,
		queue:       make(chan Request, size),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the queue consumers.
func (s *Sender) Start(context.Context) error {
	if !s.state.Start() {
		return nil
	}
	if !s.cfg.Queue.Enabled {
		return nil
	}
	consumers := s.cfg.Queue.NumConsumers
	if consumers < 1 {
		consumers = 1
	}
	for i := 0; i < consumers; i++ {
		s.goroutines.Add(1)
		go func() {
			defer s.goroutines.Done()
			for req := range s.queue {
				_ = s.send(context.Background(), req)
			}
		}()
	}
	return nil
}

// Send queues req for upload. With the queue disabled it uploads on the
// calling goroutine and returns the final error.
func (s *Sender) Send(ctx context.Context, req Request) error {
	if !s.state.Running() {
		return errNotRunning
	}
	if !s.cfg.Queue.Enabled {
		return s.send(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errNotRunning
	}
	select {
	case s.queue <- req:
		return nil
	default:
		s.logger.Warn("Dropping data because sending_queue is full. Try increasing queue_size.",
			zap.String("kind", string(req.Kind)),
			zap.Int("dropped_items", req.Count))
		return errQueueFull
	}
}

// SendNow uploads req on the calling goroutine, bypassing the queue, and
// returns the final error.
func (s *Sender) SendNow(ctx context.Context, req Request) error {
	if !s.state.Running() {
		return errNotRunning
	}
	return s.send(ctx, req)
}

// Shutdown interrupts pending backoffs, tries every queued request once more
// and waits for the consumers to finish.
func (s *Sender) Shutdown(ctx context.Context) error {
	if !s.state.Stop() {
		return nil
	}
	// First stop the retry loops, which unblocks the queue consumers.
	close(s.stopCh)

	s.mu.Lock()
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.goroutines.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sender) send(ctx context.Context, req Request) error {
	err := s.sendWithRetry(ctx, req)
	if err == nil {
		s.onDelivered(ctx, req)
		return nil
	}
	s.logger.Warn("Upload failed. Dropping data.",
		zap.String("kind", string(req.Kind)),
		zap.String("batch_id", req.ID),
		zap.Int("dropped_items", req.Count),
		zap.Error(err))
	return err
}

func (s *Sender) sendWithRetry(ctx context.Context, req Request) error {
	if !s.cfg.Retry.Enabled {
		return s.uploader.Upload(ctx, req)
	}

	// Do not use NewExponentialBackOff since it calls Reset and the code here must
	// call Reset after changing the InitialInterval.
	expBackoff := backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.Retry.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         s.cfg.Retry.MaxInterval,
		MaxElapsedTime:      s.cfg.Retry.MaxElapsedTime,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	expBackoff.Reset()
	for {
		err := s.uploader.Upload(ctx, req)
		if err == nil {
			return nil
		}

		// Immediately drop data on permanent errors.
		if IsPermanent(err) {
			return err
		}

		delay := expBackoff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("max elapsed time expired %w", err)
		}

		var throttle throttleRetry
		if errors.As(err, &throttle) && throttle.delay > delay {
			delay = throttle.delay
		}

		s.logger.Debug("Upload failed. Will retry the request after interval.",
			zap.String("batch_id", req.ID),
			zap.Duration("interval", delay),
			zap.Error(err))

		// Back off, but get interrupted when shutting down or when the
		// request is cancelled.
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("request is cancelled or timed out %w", err)
		case <-s.stopCh:
			timer.Stop()
			return fmt.Errorf("interrupted due to shutdown %w", err)
		case <-timer.C:
		}
	}
}
