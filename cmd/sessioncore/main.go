// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Program sessioncore drives the session core from the command line: it
// replays scripted app activity and inspects the batches left on disk.
package main

import (
	"log"

	"go.opentelemetry.io/mobile/cmd/sessioncore/internal"
)

func main() {
	cmd, err := internal.Command()
	if err != nil {
		log.Fatal(err)
	}
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
