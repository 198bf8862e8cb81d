package steps

import (
	"fmt"

	"github.com/virtforge/virtforge/internal/provisioning"
)

// Pinning applies the persisted cpusets to the deployed guests: each vcpu
// is pinned 1:1 to its physical CPU, the emulator thread is confined to
// the guest's whole cpuset, and with a NUMA-partitioned host the guest's
// memory is bound to its node.
type Pinning struct{}

// Run implements provisioning.Step.
func (s *Pinning) Run(ctx *provisioning.Context) error {
	allocs, err := ctx.Config.Allocations()
	if err != nil {
		return fmt.Errorf("reading persisted allocations: %w", err)
	}
	if len(allocs) == 0 {
		return &provisioning.ValidationError{
			Prerequisite: "persisted allocations",
			Detail:       "run the allocation step first",
		}
	}

	names := vmNames(ctx.Config)
	if len(allocs) != len(names) {
		return fmt.Errorf("persisted allocations cover %d vms, configuration wants %d; re-run the allocation step",
			len(allocs), len(names))
	}

	for i, name := range names {
		a := allocs[i]
		for vcpu := 0; vcpu < a.VCPUCount && vcpu < len(a.CPUSet); vcpu++ {
			v, cpu := vcpu, a.CPUSet[vcpu]
			err := ctx.Gateway.Do(
				fmt.Sprintf("pin vcpu %d of %s to cpu %d", v, name, cpu),
				func() error { return ctx.Hypervisor.PinVCPU(ctx, name, v, []int{cpu}) },
			)
			if err != nil {
				return &provisioning.ExternalError{Collaborator: "hypervisor", Op: fmt.Sprintf("pin vcpu %d of %s", v, name), Err: err}
			}
		}

		vm := name
		err := ctx.Gateway.Do(
			"pin emulator thread of "+vm,
			func() error { return ctx.Hypervisor.PinEmulator(ctx, vm, a.CPUSet) },
		)
		if err != nil {
			return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "pin emulator of " + vm, Err: err}
		}

		if a.NUMANode >= 0 {
			node := a.NUMANode
			err := ctx.Gateway.Do(
				fmt.Sprintf("bind memory of %s to numa node %d", vm, node),
				func() error { return ctx.Hypervisor.SetNUMAPolicy(ctx, vm, node) },
			)
			if err != nil {
				return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "numa policy of " + vm, Err: err}
			}
		}
	}
	return nil
}

// Check implements provisioning.Step. The pin tables live inside libvirt;
// what can be verified from outside is that the inputs still line up.
func (s *Pinning) Check(ctx *provisioning.Context) error {
	allocs, err := ctx.Config.Allocations()
	if err != nil {
		return fmt.Errorf("reading persisted allocations: %w", err)
	}
	if len(allocs) == 0 {
		return &provisioning.ValidationError{Prerequisite: "persisted allocations"}
	}
	for _, name := range vmNames(ctx.Config) {
		exists, err := ctx.Hypervisor.DomainExists(ctx, name)
		if err != nil {
			return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "query " + name, Err: err}
		}
		if !exists {
			return &provisioning.ValidationError{Prerequisite: "vm " + name, Detail: "not defined"}
		}
	}
	return nil
}
