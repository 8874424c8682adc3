package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waabox/conveyor/internal/domain"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// Exit codes distinguish why a run did not succeed.
const (
	exitOK            = 0
	exitJobFailure    = 1
	exitConfiguration = 2
	exitCancelled     = 3
)

// errRunFailed signals a run that finished with a failed job.
var errRunFailed = errors.New("run failed")

// errRunCancelled signals a run that was aborted.
var errRunCancelled = errors.New("run cancelled")

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "conveyor: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "conveyor",
		Short:         "conveyor runs declarative CI pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newRunsCmd())
	return root
}

func exitCode(err error) int {
	var confErr *domain.ConfigurationError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &confErr):
		return exitConfiguration
	case errors.Is(err, errRunCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitJobFailure
	}
}
