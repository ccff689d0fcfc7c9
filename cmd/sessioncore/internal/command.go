// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package internal // import "go.opentelemetry.io/mobile/cmd/sessioncore/internal"

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/config"
)

type rootOptions struct {
	cfgFile string
}

// Command is the main entrypoint for this application
func Command() (*cobra.Command, error) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		SilenceUsage:  true, // Don't print usage on Run error.
		SilenceErrors: true, // Don't print errors; main does it.
		Use:           "sessioncore",
		Long: fmt.Sprintf("Mobile telemetry session core (%s)", version) + `

sessioncore replays scripted app activity through the session core and
inspects the telemetry batches kept on disk. Settings come from the file
given by "--config", SESSIONCORE_* environment variables and the dotted
flags below, in that order of precedence.
`,
		Args: cobra.NoArgs,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "configuration file")
	flags.String("storage.directory", "", "directory of the on-disk store")
	flags.String("telemetry.level", "", "log level of the core")
	flags.String("lifecycle.mode", "", "session lifecycle mode: automatic or manual")

	cmd.AddCommand(replayCommand(opts))
	cmd.AddCommand(recoverCommand(opts))
	cmd.AddCommand(versionCommand())
	return cmd, nil
}

// loadConfig reads the configuration for a subcommand and builds the logger
// it describes.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Telemetry.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get logger: %w", err)
	}
	if o.cfgFile != "" {
		logger.Info("Using config file", zap.String("path", o.cfgFile))
	}
	return cfg, logger, nil
}
