package commands

import (
	"github.com/spf13/cobra"

	"github.com/virtforge/virtforge/cmd/virtforge/handlers"
)

// Apply returns the command that runs the provisioning pipeline.
func Apply() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run all remaining provisioning steps",
		Long: `Run every provisioning step from the resume point.

The pipeline continues from the last completed step. Steps that change
kernel or network configuration request a host reboot; progress is saved
first, so running apply again after the reboot picks up where it stopped.

Examples:
  # Run the pipeline, confirming each step
  virtforge apply

  # Unattended run
  virtforge apply --yes

  # See what would happen without touching the host
  virtforge apply --dry-run

  # Drive the installer from a menu
  virtforge apply --interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), opts, interactive)
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Drive the installer from an interactive menu")

	return cmd
}
