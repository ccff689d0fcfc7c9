// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package internal // import "go.opentelemetry.io/mobile/cmd/sessioncore/internal"

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/exporter/storageexporter"
)

var errStorageDisabled = errors.New("storage is not enabled in the configuration")

func recoverCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "List and acknowledge batches left on disk",
		Long: `Lists the batches stored by previous processes that were never delivered
and acknowledges them, so they are not recovered again. With --dry-run the
batches are only listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, logger, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if !cfg.Storage.Enabled {
				return errStorageDisabled
			}

			storage, err := storageexporter.New(storageexporter.Settings{
				Logger:    logger,
				ProcessID: uuid.NewString(),
			}, cfg.Storage.Config)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, storage.Close())
			}()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()
			list := func(_ context.Context, b storageexporter.Batch) error {
				fmt.Fprintf(out, "%s\t%s\t%d\t%s\t%s\n",
					b.ID, b.Kind, b.Count, b.ProcessID, b.CreatedAt.Format(time.RFC3339))
				return nil
			}

			if dryRun {
				pending, err := storage.Pending(ctx)
				if err != nil {
					return err
				}
				for _, b := range pending {
					_ = list(ctx, b)
				}
				return nil
			}
			n, err := storage.Recover(ctx, list)
			if err != nil {
				return err
			}
			logger.Info("Acknowledged batches of previous processes", zap.Int("batches", n))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list the batches")
	return cmd
}
