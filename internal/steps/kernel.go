package steps

import (
	"strings"

	"github.com/virtforge/virtforge/internal/provisioning"
)

// Kernel enables the IOMMU on the kernel command line so PCI devices can
// be handed to guests. The new arguments only take effect after a
// restart, which is why this step is registered as a reboot trigger.
type Kernel struct{}

// Run implements provisioning.Step.
func (s *Kernel) Run(ctx *provisioning.Context) error {
	cmdline, err := currentCmdline(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(cmdline, "iommu=pt") {
		// Already applied on a previous run, nothing to change and no
		// reason to restart again.
		return provisioning.ErrNotApplicable
	}

	args := kernelArgs(ctx)
	return ctx.Gateway.Do(
		"set kernel boot arguments: "+args,
		func() error {
			return ctx.System.Run(ctx, "grubby", "--update-kernel=ALL", "--args="+args)
		},
	)
}

// Check implements provisioning.Step. The postcondition is only visible
// once the host has restarted into the new command line.
func (s *Kernel) Check(ctx *provisioning.Context) error {
	cmdline, err := currentCmdline(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(cmdline, "iommu=pt") {
		return &provisioning.ValidationError{
			Prerequisite: "kernel iommu arguments",
			Detail:       "not present in /proc/cmdline, restart pending",
		}
	}
	return nil
}

func currentCmdline(ctx *provisioning.Context) (string, error) {
	out, err := ctx.System.Output(ctx, "cat", "/proc/cmdline")
	if err != nil {
		return "", &provisioning.ExternalError{Collaborator: "system", Op: "read cmdline", Err: err}
	}
	return out, nil
}

// kernelArgs picks the vendor-specific IOMMU switch. If the vendor cannot
// be determined the intel form is used; amd hosts honor iommu=pt either way.
func kernelArgs(ctx *provisioning.Context) string {
	out, err := ctx.System.Output(ctx, "grep", "-m1", "vendor_id", "/proc/cpuinfo")
	if err == nil && strings.Contains(out, "AuthenticAMD") {
		return "amd_iommu=on iommu=pt"
	}
	return "intel_iommu=on iommu=pt"
}
