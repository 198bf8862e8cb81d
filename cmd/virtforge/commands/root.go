// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated
// to handler functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/virtforge/virtforge/cmd/virtforge/handlers"
)

// opts carries the global flags into every handler invocation.
var opts handlers.Options

// Root returns the root command for the virtforge CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "virtforge",
		Short: "Partition a bare-metal host into pinned KVM guests",
		Long: `virtforge drives a physical server through an ordered, resumable
sequence of provisioning steps: virtualization packages, kernel IOMMU
parameters, bridge networking, storage layout, resource allocation,
guest deployment, PCI passthrough and CPU pinning.

Progress is persisted after every step, so the pipeline continues from
where it left off - including across the host reboots some steps require.`,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"Path to configuration file (default: "+handlers.DefaultConfigPath+")")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false,
		"Record what would be done without touching the host")
	cmd.PersistentFlags().BoolVarP(&opts.AssumeYes, "yes", "y", false,
		"Answer every confirmation prompt affirmatively")

	cmd.AddCommand(Apply())
	cmd.AddCommand(Step())
	cmd.AddCommand(Config())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Log())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
