// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/triage/cmd"
)

// Exit codes. A job or diagnosis that did not succeed is reported with
// exitFailure; exitCancelled follows the shell convention for SIGINT.
const (
	exitFailure   = 1
	exitCancelled = 130
)

// main is the entry point for the triage CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(exitCancelled)
		}
		os.Exit(exitFailure)
	}
}
