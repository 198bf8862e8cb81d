package steps

import (
	"fmt"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/platform/virsh"
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Deploy defines and starts one guest per persisted allocation. A guest
// that already exists is left alone, so re-running after a partial
// failure only deploys the missing ones.
type Deploy struct{}

// Run implements provisioning.Step.
func (s *Deploy) Run(ctx *provisioning.Context) error {
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

	pool := ctx.Config.String(config.KeyImagePoolPath)
	bridge := ctx.Config.String(config.KeyBridgeName)

	// Guests deploy one at a time, in name order. Sequential execution
	// keeps the run log readable and failures attributable.
	for i, name := range names {
		exists, err := ctx.Hypervisor.DomainExists(ctx, name)
		if err != nil && !ctx.Gateway.DryRun() {
			return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "query " + name, Err: err}
		}
		if exists {
			ctx.Observer.Printf("vm %s already defined, skipping", name)
			continue
		}

		spec := virsh.GuestSpec{
			Name:     name,
			VCPUs:    allocs[i].VCPUCount,
			CPUSet:   allocs[i].CPUSet,
			NUMANode: allocs[i].NUMANode,
			MemoryMB: allocs[i].MemoryMB,
			DiskGB:   allocs[i].DiskGB,
			PoolPath: pool,
			Bridge:   bridge,
		}
		if err := s.deployOne(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Deploy) deployOne(ctx *provisioning.Context, spec virsh.GuestSpec) error {
	image := virsh.ImagePath(spec.PoolPath, spec.Name)
	err := ctx.Gateway.Do(
		fmt.Sprintf("create %d GB image %s", spec.DiskGB, image),
		func() error {
			return ctx.System.Run(ctx, "qemu-img", "create", "-f", "qcow2",
				image, fmt.Sprintf("%dG", spec.DiskGB))
		},
	)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "system", Op: "create image for " + spec.Name, Err: err}
	}

	doc, err := virsh.BuildDomainXML(spec)
	if err != nil {
		return fmt.Errorf("building domain definition for %s: %w", spec.Name, err)
	}
	err = ctx.Gateway.Do(
		"define vm "+spec.Name,
		func() error { return ctx.Hypervisor.Define(ctx, doc) },
	)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "define " + spec.Name, Err: err}
	}

	err = ctx.Gateway.Do(
		"start vm "+spec.Name,
		func() error { return ctx.Hypervisor.Start(ctx, spec.Name) },
	)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "start " + spec.Name, Err: err}
	}
	return nil
}

// Check implements provisioning.Step.
func (s *Deploy) Check(ctx *provisioning.Context) error {
	for _, name := range vmNames(ctx.Config) {
		state, err := ctx.Hypervisor.State(ctx, name)
		if err != nil {
			return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "query " + name, Err: err}
		}
		if state == virsh.StateNoDomain {
			return &provisioning.ValidationError{Prerequisite: "vm " + name, Detail: "not defined"}
		}
		if state != virsh.StateRunning {
			return fmt.Errorf("vm %s is %s, expected running", name, state)
		}
	}
	return nil
}
