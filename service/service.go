// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package service assembles the session core: the session controller and
// its lifecycle driver, the batch schedulers, the cardinality limiter, crash
// linkage, storage and upload.
package service // import "go.opentelemetry.io/mobile/service"

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/config"
	"go.opentelemetry.io/mobile/crashlinkage"
	"go.opentelemetry.io/mobile/exporter/retrysender"
	"go.opentelemetry.io/mobile/exporter/storageexporter"
	"go.opentelemetry.io/mobile/internal/obsreport"
	"go.opentelemetry.io/mobile/internal/processinfo"
	"go.opentelemetry.io/mobile/internal/runstate"
	"go.opentelemetry.io/mobile/lifecycle"
	"go.opentelemetry.io/mobile/processor/batchprocessor"
	"go.opentelemetry.io/mobile/processor/cardinalitylimiter"
	"go.opentelemetry.io/mobile/session"
	"go.opentelemetry.io/mobile/telemetry"
)

// Service owns every component of the core. All of them are created by New;
// nothing is shared through package state.
type Service struct {
	logger  *zap.Logger
	process processinfo.Info
	now     func() time.Time

	recorder   *obsreport.Recorder
	storage    *storageexporter.Exporter
	sender     *retrysender.Sender
	controller *session.Controller
	limiter    *cardinalitylimiter.Limiter
	spans      *batchprocessor.Scheduler[telemetry.Span]
	logs       *batchprocessor.Scheduler[telemetry.Log]
	driver     lifecycle.Driver
	linker     *crashlinkage.Linker
	sessionLog *sessionSpans

	backgroundEnabled *atomic.Bool

	cfgMu sync.Mutex
	cfg   *config.Config

	state         runstate.State
	stopRecovery  context.CancelFunc
	recoveryGroup sync.WaitGroup
}

// New builds a service from cfg. The service does nothing until Start.
func New(set Settings, cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	logger := set.Logger
	if logger == nil {
		var err error
		if logger, err = cfg.Telemetry.NewLogger(); err != nil {
			return nil, fmt.Errorf("failed to get logger: %w", err)
		}
	}
	recorder := obsreport.NewNop()
	if set.Registerer != nil {
		var err error
		if recorder, err = obsreport.New(set.Registerer); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	process := set.Process
	if process.ID == "" {
		process = processinfo.Current()
	}

	srv := &Service{
		logger:            logger,
		process:           process,
		now:               o.now,
		recorder:          recorder,
		backgroundEnabled: atomic.NewBool(cfg.Session.BackgroundSessionsEnabled),
		cfg:               cfg,
	}

	var store session.Store
	if cfg.Storage.Enabled {
		storage, err := storageexporter.New(storageexporter.Settings{
			Logger:    logger.With(zap.String("component", "storage")),
			ProcessID: process.ID,
		}, cfg.Storage.Config)
		if err != nil {
			return nil, err
		}
		srv.storage = storage
		store = storage
	}
	if set.Uploader != nil {
		srv.sender = retrysender.New(retrysender.Settings{
			Logger:      logger.With(zap.String("component", "upload")),
			OnDelivered: srv.delivered,
		}, cfg.Upload, set.Uploader)
	}

	srv.controller = session.NewController(session.Settings{
		Logger:   logger.With(zap.String("component", "session")),
		Recorder: recorder,
		Process:  process,
	}, cfg.Session, store, session.WithClock(o.now))
	srv.limiter = cardinalitylimiter.New(cfg.Limits, logger.With(zap.String("component", "limiter")), recorder)

	var linkerOpts []crashlinkage.Option
	if srv.storage != nil {
		linkerOpts = append(linkerOpts, crashlinkage.WithCrashRecorder(srv.storage))
	}
	srv.linker = crashlinkage.NewLinker(crashlinkage.Settings{
		Logger:   logger.With(zap.String("component", "crash_linkage")),
		Recorder: recorder,
	}, cfg.CrashLinkage, set.CrashForwarder, linkerOpts...)
	if srv.storage != nil {
		srv.linker.Seed(srv.storage.PriorSessions()...)
	}

	spanSink, logSink := o.spanSink, o.logSink
	if spanSink == nil {
		spanSink = newSink[telemetry.Span](srv, telemetry.KindSpan)
	}
	if logSink == nil {
		logSink = newSink[telemetry.Log](srv, telemetry.KindLog)
	}
	srv.spans = batchprocessor.NewScheduler[telemetry.Span](batchprocessor.Settings{
		Kind:     telemetry.KindSpan,
		Logger:   logger,
		Recorder: recorder,
	}, cfg.Spans, spanSink, batchprocessor.WithClock(o.now))
	srv.logs = batchprocessor.NewScheduler[telemetry.Log](batchprocessor.Settings{
		Kind:     telemetry.KindLog,
		Logger:   logger,
		Recorder: recorder,
	}, cfg.Logs, logSink, batchprocessor.WithClock(o.now))

	srv.sessionLog = newSessionSpans(srv)
	// The limiter resets its budgets before anything else observes the new
	// session.
	srv.controller.AddListener(srv.limiter)
	srv.controller.AddListener(srv.linker)
	srv.controller.AddListener(srv.sessionLog)

	driverOpts := []lifecycle.Option{lifecycle.WithClock(o.now)}
	if set.StateProvider != nil {
		driverOpts = append(driverOpts, lifecycle.WithStateProvider(set.StateProvider))
	}
	driver, err := lifecycle.New(lifecycle.Settings{
		Logger: logger.With(zap.String("component", "lifecycle")),
	}, cfg.Lifecycle, srv.controller, driverOpts...)
	if err != nil {
		return nil, multierr.Append(err, srv.closeStorage())
	}
	srv.driver = driver
	return srv, nil
}

// Start starts the schedulers and the upload queue, activates the lifecycle
// driver and, when both storage and upload are configured, begins delivering
// batches left behind by previous processes.
func (srv *Service) Start(ctx context.Context) error {
	if !srv.state.Start() {
		return nil
	}
	srv.logger.Info("Starting session core...",
		zap.String("process_id", srv.process.ID),
		zap.Int("pid", srv.process.PID))

	if srv.sender != nil {
		if err := srv.sender.Start(ctx); err != nil {
			return fmt.Errorf("failed to start upload: %w", err)
		}
	}
	if err := srv.spans.Start(ctx); err != nil {
		return fmt.Errorf("failed to start span batching: %w", err)
	}
	if err := srv.logs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start log batching: %w", err)
	}

	srv.driver.Setup()
	srv.driver.StartSession()

	if srv.storage != nil && srv.sender != nil {
		recoverCtx, cancel := context.WithCancel(context.Background())
		srv.stopRecovery = cancel
		srv.recoveryGroup.Add(1)
		go func() {
			defer srv.recoveryGroup.Done()
			srv.recoverPrior(recoverCtx)
		}()
	}
	srv.logger.Info("Everything is ready. Begin recording sessions.")
	return nil
}

// Shutdown flushes both schedulers within the deadline of ctx, stops the
// heartbeat and the upload queue and closes the storage. The current session
// is not ended. Errors of every step are combined.
func (srv *Service) Shutdown(ctx context.Context) error {
	if !srv.state.Stop() {
		return nil
	}
	srv.logger.Info("Starting shutdown...")

	var errs error
	srv.driver.Stop()
	if srv.stopRecovery != nil {
		srv.stopRecovery()
		srv.recoveryGroup.Wait()
	}
	if err := srv.spans.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to flush spans: %w", err))
	}
	if err := srv.logs.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to flush logs: %w", err))
	}
	if err := srv.controller.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to stop session controller: %w", err))
	}
	if srv.sender != nil {
		if err := srv.sender.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop upload: %w", err))
		}
	}
	if err := srv.closeStorage(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	srv.logger.Info("Shutdown complete.")
	return errs
}

// Flush hands the current span and log batches to their sinks and waits
// until both were handled or ctx is done.
func (srv *Service) Flush(ctx context.Context) error {
	return multierr.Combine(
		srv.spans.ForceEndCurrentBatchContext(ctx),
		srv.logs.ForceEndCurrentBatchContext(ctx),
	)
}

// Storage returns the on-disk store, or nil when storage is disabled.
func (srv *Service) Storage() *storageexporter.Exporter {
	return srv.storage
}

// Config returns the configuration in effect, remote updates included.
func (srv *Service) Config() *config.Config {
	srv.cfgMu.Lock()
	defer srv.cfgMu.Unlock()
	return srv.cfg
}

func (srv *Service) closeStorage() error {
	if srv.storage == nil {
		return nil
	}
	return srv.storage.Close()
}

// recoverPrior uploads the batches of previous processes one at a time.
// Batches that cannot be delivered stay on disk for the next launch.
func (srv *Service) recoverPrior(ctx context.Context) {
	n, err := srv.storage.Recover(ctx, func(ctx context.Context, b storageexporter.Batch) error {
		return srv.sender.SendNow(ctx, requestFor(b))
	})
	if err != nil {
		srv.logger.Warn("Recovery of previous batches stopped",
			zap.Int("delivered", n),
			zap.Error(err))
		return
	}
	srv.logger.Debug("Recovery of previous batches done", zap.Int("delivered", n))
}

func (srv *Service) delivered(ctx context.Context, req retrysender.Request) {
	if srv.storage == nil {
		return
	}
	if err := srv.storage.Ack(ctx, req.ID); err != nil {
		srv.logger.Warn("Failed to acknowledge delivered batch",
			zap.String("batch_id", req.ID),
			zap.Error(err))
	}
}
