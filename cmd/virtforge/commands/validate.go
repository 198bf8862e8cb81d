package commands

import (
	"github.com/spf13/cobra"

	"github.com/virtforge/virtforge/cmd/virtforge/handlers"
)

// Validate returns the read-only host validation command.
func Validate() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every step's postcondition without mutating anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), opts)
		},
	}
}
