// Package main is the entry point for the virtforge CLI.
//
// virtforge partitions a bare-metal server into a fixed set of pinned
// KVM guests: it installs the virtualization stack, configures kernel
// and network, splits CPUs, NUMA-local memory and disk across the
// guests, deploys them and hands reserved PCI network devices through.
// Every step is resumable across the host reboots the pipeline itself
// triggers.
//
// For detailed usage information, run:
//
//	virtforge --help
package main

import (
	"fmt"
	"os"

	"github.com/virtforge/virtforge/cmd/virtforge/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
