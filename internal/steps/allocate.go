package steps

import (
	"fmt"

	"github.com/virtforge/virtforge/internal/alloc"
	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/provisioning"
)

const (
	// hostReserveMB is memory withheld from the guest split for the host
	// itself (kernel, libvirtd, page cache headroom).
	hostReserveMB = 2048
	// diskReserveGB is withheld from a probed backing device so the pool
	// never consumes the root filesystem completely.
	diskReserveGB = 20
)

// Allocate runs the resource allocator against the probed hardware and
// persists its output into the configuration store. Later steps consume
// the persisted allocations instead of recomputing, so one allocator run
// governs the whole install.
type Allocate struct{}

// Run implements provisioning.Step. Persisting the plan is a write to the
// installer's own store, not a host mutation, so it happens in dry-run
// mode too; only privileged changes go through the gateway.
func (s *Allocate) Run(ctx *provisioning.Context) error {
	host, err := ctx.Probe.Topology(ctx)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "probe", Op: "topology", Err: err}
	}

	memoryMB := host.TotalMemoryMB - hostReserveMB
	if memoryMB <= 0 {
		return fmt.Errorf("host has %d MB memory, not enough beyond the %d MB host reserve",
			host.TotalMemoryMB, hostReserveMB)
	}

	diskGB, err := s.diskTotal(ctx)
	if err != nil {
		return err
	}

	result, err := alloc.Compute(alloc.Request{
		VMCount:    ctx.Config.Int(config.KeyVMCount),
		TotalVCPUs: host.TotalVCPUs,
		MemoryMB:   memoryMB,
		DiskGB:     diskGB,
		Topology:   host,
	})
	if err != nil {
		return err
	}

	for _, short := range result.Shortfalls {
		ctx.Observer.Event(provisioning.Event{
			Type:    provisioning.EventValidationWarning,
			StepID:  AllocateID,
			Message: short,
		})
	}

	if err := ctx.Config.SaveAllocations(result.Allocations); err != nil {
		return fmt.Errorf("persisting allocations: %w", err)
	}

	for i, a := range result.Allocations {
		ctx.Observer.Printf("vm %d: %d vcpus on node %d, %d MB memory, %d GB disk",
			i+1, a.VCPUCount, a.NUMANode, a.MemoryMB, a.DiskGB)
	}
	return nil
}

// Check implements provisioning.Step.
func (s *Allocate) Check(ctx *provisioning.Context) error {
	allocs, err := ctx.Config.Allocations()
	if err != nil {
		return fmt.Errorf("reading persisted allocations: %w", err)
	}
	if len(allocs) == 0 {
		return &provisioning.ValidationError{Prerequisite: "persisted allocations"}
	}
	if want := ctx.Config.Int(config.KeyVMCount); len(allocs) != want {
		return fmt.Errorf("persisted allocations cover %d vms, configuration wants %d", len(allocs), want)
	}
	if !alloc.Disjoint(allocs) {
		return fmt.Errorf("persisted allocations have overlapping cpusets")
	}
	return nil
}

// diskTotal resolves the disk pool size: the configured override, or the
// largest probed block device minus the reserve.
func (s *Allocate) diskTotal(ctx *provisioning.Context) (int, error) {
	if gb := ctx.Config.Int(config.KeyDiskTotalGB); gb > 0 {
		return gb, nil
	}

	blocks, err := ctx.Probe.BlockDevices(ctx)
	if err != nil {
		return 0, &provisioning.ExternalError{Collaborator: "probe", Op: "block devices", Err: err}
	}
	largest := 0
	for _, b := range blocks {
		if b.SizeGB > largest {
			largest = b.SizeGB
		}
	}
	if largest <= diskReserveGB {
		return 0, fmt.Errorf("largest block device is %d GB, not enough beyond the %d GB reserve",
			largest, diskReserveGB)
	}
	return largest - diskReserveGB, nil
}
