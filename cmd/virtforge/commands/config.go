package commands

import (
	"github.com/spf13/cobra"

	"github.com/virtforge/virtforge/cmd/virtforge/handlers"
)

// Config returns the configuration command group.
func Config() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit installer configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every configuration key and its effective value",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return handlers.ConfigList(opts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return handlers.ConfigGet(opts, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one configuration value through to disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return handlers.ConfigSet(opts, args[0], args[1])
		},
	})

	return cmd
}
