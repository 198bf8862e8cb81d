package commands

import (
	"github.com/spf13/cobra"

	"github.com/virtforge/virtforge/cmd/virtforge/handlers"
)

// Step returns the command that runs one named step.
func Step() *cobra.Command {
	return &cobra.Command{
		Use:   "step <id|name>",
		Short: "Run a single provisioning step",
		Long: `Run one step regardless of the resume point, e.g. after fixing the
inputs of a failed step.

Examples:
  virtforge step 05-allocate
  virtforge step 07-passthrough --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Step(cmd.Context(), opts, args[0])
		},
	}
}
