// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package internal // import "go.opentelemetry.io/mobile/cmd/sessioncore/internal"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/exporter/retrysender"
	"go.opentelemetry.io/mobile/service"
)

var errNoScript = errors.New("a script is required, use --script")

// printer writes every uploaded batch to out.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) Upload(_ context.Context, req retrysender.Request) error {
	p.printf("%s batch %s (%d items): %s", req.Kind, req.ID, req.Count, req.Payload)
	return nil
}

func replayCommand(opts *rootOptions) *cobra.Command {
	var scriptFile string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay scripted app activity",
		Long: `Replays the steps of a YAML script through a session core and prints
every batch it uploads. With storage enabled, batches are stored before
they are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scriptFile == "" {
				return errNoScript
			}
			s, err := loadScript(scriptFile)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			out := &printer{out: cmd.OutOrStdout()}
			srv, err := service.New(service.Settings{
				Logger:   logger,
				Uploader: out,
			}, cfg)
			if err != nil {
				return err
			}
			return replay(cmd.Context(), srv, s, out, logger)
		},
	}
	cmd.Flags().StringVar(&scriptFile, "script", "", "script of steps to replay")
	return cmd
}

func replay(ctx context.Context, srv *service.Service, s *script, out *printer, logger *zap.Logger) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err = srv.Start(ctx); err != nil {
		return multierr.Append(err, srv.Shutdown(context.Background()))
	}
	defer func() {
		err = multierr.Append(err, srv.Shutdown(context.Background()))
	}()

	for i, st := range s.Steps {
		if err := st.run(ctx, srv, out.printf); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	if cur, ok := srv.CurrentSession(); ok {
		logger.Info("Replay finished", zap.String("session_id", cur.ID), zap.String("state", string(cur.State)))
	}
	return nil
}
