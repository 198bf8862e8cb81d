package steps

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Preflight verifies the host is fit for partitioning before anything is
// mutated: CPU virtualization support, enough CPUs for the requested VM
// count, and at least one disk to back the image pool.
type Preflight struct{}

// Run implements provisioning.Step. Preflight is read-only; it issues no
// gateway actions.
func (s *Preflight) Run(ctx *provisioning.Context) error {
	if err := s.Check(ctx); err != nil {
		return err
	}

	host, err := ctx.Probe.Topology(ctx)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "probe", Op: "topology", Err: err}
	}
	ctx.Observer.Printf("host: %d vcpus, %d MB memory, %d numa nodes",
		host.TotalVCPUs, host.TotalMemoryMB, host.NodeCount())
	return nil
}

// Check implements provisioning.Step.
func (s *Preflight) Check(ctx *provisioning.Context) error {
	out, err := ctx.System.Output(ctx, "grep", "-c", "-E", "vmx|svm", "/proc/cpuinfo")
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "system", Op: "read cpuinfo", Err: err}
	}
	n, _ := strconv.Atoi(strings.TrimSpace(out))
	if n == 0 {
		return fmt.Errorf("cpu reports no virtualization support (vmx/svm)")
	}

	host, err := ctx.Probe.Topology(ctx)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "probe", Op: "topology", Err: err}
	}
	if err := host.Validate(); err != nil {
		return fmt.Errorf("inconsistent topology: %w", err)
	}
	if count := ctx.Config.Int(config.KeyVMCount); host.TotalVCPUs < count {
		return fmt.Errorf("%d vcpus cannot host %d vms", host.TotalVCPUs, count)
	}

	blocks, err := ctx.Probe.BlockDevices(ctx)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "probe", Op: "block devices", Err: err}
	}
	if len(blocks) == 0 {
		return fmt.Errorf("no block devices found to back the image pool")
	}
	return nil
}
