package steps

import (
	"fmt"

	"github.com/virtforge/virtforge/internal/devices"
	"github.com/virtforge/virtforge/internal/platform/probe"
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Passthrough hands the reserved physical network devices to the guests
// as PCI hostdevs. With no interfaces reserved in the configuration the
// step is not applicable.
type Passthrough struct{}

// Run implements provisioning.Step.
func (s *Passthrough) Run(ctx *provisioning.Context) error {
	reserved := passthroughNames(ctx.Config)
	if len(reserved) == 0 {
		return provisioning.ErrNotApplicable
	}

	nics, err := ctx.Probe.NetworkInterfaces(ctx)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "probe", Op: "network interfaces", Err: err}
	}

	candidates := reservedNICs(ctx, nics, reserved)
	if len(candidates) == 0 {
		return fmt.Errorf("none of the reserved interfaces %v were found with a pci address", reserved)
	}

	explicit, err := ctx.Config.AssignedDevices()
	if err != nil {
		return fmt.Errorf("reading persisted assignments: %w", err)
	}

	assignments, err := devices.Partition(candidates, vmNames(ctx.Config), explicit)
	if err != nil {
		return err
	}
	if err := ctx.Config.SaveAssignments(assignments); err != nil {
		return fmt.Errorf("persisting assignments: %w", err)
	}

	mgr := devices.NewManager(ctx.Hypervisor, ctx.Gateway, ctx.Observer)
	return mgr.Attach(ctx, assignments)
}

// Check implements provisioning.Step: every persisted assignment must be
// present in its VM's definition exactly once.
func (s *Passthrough) Check(ctx *provisioning.Context) error {
	if len(passthroughNames(ctx.Config)) == 0 {
		return nil
	}
	assignments, err := ctx.Config.AssignedDevices()
	if err != nil {
		return fmt.Errorf("reading persisted assignments: %w", err)
	}
	if len(assignments) == 0 {
		return &provisioning.ValidationError{Prerequisite: "persisted device assignments"}
	}

	for vm, addrs := range assignments {
		attached, err := ctx.Hypervisor.AttachedHostdevs(ctx, vm)
		if err != nil {
			return &provisioning.ExternalError{Collaborator: "hypervisor", Op: "list hostdevs of " + vm, Err: err}
		}
		have := make(map[string]int)
		for _, a := range attached {
			have[a.String()]++
		}
		for _, want := range addrs {
			switch have[want] {
			case 1:
			case 0:
				return fmt.Errorf("device %s not attached to %s", want, vm)
			default:
				return fmt.Errorf("device %s attached to %s %d times", want, vm, have[want])
			}
		}
	}
	return nil
}

// reservedNICs resolves the reserved names against the probed interfaces,
// preserving the configured order. A name that is missing or has no PCI
// backing is warned about and dropped rather than failing the step.
func reservedNICs(ctx *provisioning.Context, nics []probe.NIC, reserved []string) []probe.NIC {
	byName := make(map[string]probe.NIC, len(nics))
	for _, nic := range nics {
		byName[nic.Name] = nic
	}

	var out []probe.NIC
	for _, name := range reserved {
		nic, ok := byName[name]
		if !ok || !nic.HasPCI {
			ctx.Observer.Event(provisioning.Event{
				Type:    provisioning.EventValidationWarning,
				StepID:  PassthroughID,
				Message: fmt.Sprintf("reserved interface %s has no pci device, skipping", name),
			})
			continue
		}
		out = append(out, nic)
	}
	return out
}
