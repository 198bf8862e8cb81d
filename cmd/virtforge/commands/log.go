package commands

import (
	"github.com/spf13/cobra"

	"github.com/virtforge/virtforge/cmd/virtforge/handlers"
)

// Log returns the command that prints the persistent run log.
func Log() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Print the persistent run log",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return handlers.Log(opts)
		},
	}
}
