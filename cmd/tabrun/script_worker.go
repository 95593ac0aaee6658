package main

import (
	"github.com/spf13/cobra"

	"github.com/thomassthus-stack/Tommytiger/internal/runtime/script"
)

// newScriptWorkerCmd is started by the process-isolated script engine for
// every JavaScript program. It is not meant to be run by hand.
func newScriptWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    script.WorkerCommand,
		Short:  "Run one JavaScript program read from stdin",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return script.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
