// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package internal // import "go.opentelemetry.io/mobile/cmd/sessioncore/internal"

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// version is overridden at link time.
	version = "dev"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Version of sessioncore",
		Long:  "Prints the version of the sessioncore binary",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", cmd.Parent().Name(), version)
		},
	}
}
