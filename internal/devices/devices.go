// Package devices maps physical network devices to PCI addresses and
// attaches them to guest VMs as passthrough hostdevs. Attachment is
// idempotent and best-effort: a bad address or a failed attach never
// aborts the rest of the batch.
package devices

import (
	"fmt"
	"sort"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/execute"
	"github.com/virtforge/virtforge/internal/pci"
	"github.com/virtforge/virtforge/internal/platform/probe"
	"github.com/virtforge/virtforge/internal/platform/virsh"
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Manager assigns passthrough devices to VMs.
type Manager struct {
	Hypervisor virsh.Manager
	Gateway    *execute.Gateway
	Observer   provisioning.Observer
}

// NewManager wires a device assignment manager.
func NewManager(hypervisor virsh.Manager, gateway *execute.Gateway, observer provisioning.Observer) *Manager {
	return &Manager{Hypervisor: hypervisor, Gateway: gateway, Observer: observer}
}

// Partition decides which device goes to which VM. An explicit partition
// (operator selection persisted earlier) wins; without one, assignment is
// strictly positional in probe-discovery order: first discovered device to
// the first VM, second to the second, wrapping around.
func Partition(nics []probe.NIC, vmNames []string, explicit config.Assignments) (config.Assignments, error) {
	if len(vmNames) == 0 {
		return nil, fmt.Errorf("no target vms")
	}
	if len(explicit) > 0 {
		for vm := range explicit {
			if !contains(vmNames, vm) {
				return nil, fmt.Errorf("assignment references unknown vm %q", vm)
			}
		}
		return explicit, nil
	}

	out := make(config.Assignments)
	i := 0
	for _, nic := range nics {
		if !nic.HasPCI {
			continue
		}
		vm := vmNames[i%len(vmNames)]
		out[vm] = append(out[vm], nic.PCIAddress.String())
		i++
	}
	return out, nil
}

// Attach walks the partition and attaches every device to its VM through
// the gateway.
//
// Per-item semantics: an unparseable address is logged and skipped; an
// already attached address is a no-op; an attach failure is logged and the
// remaining pairs are still attempted. If any attach failed, the whole
// pass returns a PartialFailure marked critical so the step reports
// failure and is retried, the successful attachments then being no-ops.
func (m *Manager) Attach(ctx *provisioning.Context, assignments config.Assignments) error {
	var failures []provisioning.ItemFailure

	// Deterministic order across runs.
	vms := make([]string, 0, len(assignments))
	for vm := range assignments {
		vms = append(vms, vm)
	}
	sort.Strings(vms)

	for _, vm := range vms {
		attached, err := m.attachedSet(ctx, vm)
		if err != nil {
			failures = append(failures, provisioning.ItemFailure{Item: vm, Err: err})
			continue
		}

		for _, raw := range assignments[vm] {
			addr, err := pci.Parse(raw)
			if err != nil {
				// Parse errors are skipped, not failed: one malformed
				// entry must not poison the batch or fail the step.
				m.Observer.Printf("skipping device %q for %s: %v", raw, vm, err)
				continue
			}
			if attached[addr] {
				m.Observer.Printf("device %s already attached to %s, skipping", addr, vm)
				continue
			}

			vmName, dev := vm, addr
			err = m.Gateway.Do(
				fmt.Sprintf("attach pci hostdev %s to vm %s", dev, vmName),
				func() error { return m.Hypervisor.AttachHostdev(ctx, vmName, dev) },
			)
			if err != nil {
				m.Observer.Printf("attach %s to %s failed: %v", dev, vmName, err)
				failures = append(failures, provisioning.ItemFailure{
					Item: fmt.Sprintf("%s->%s", dev, vmName),
					Err:  err,
				})
				continue
			}
			attached[dev] = true
		}
	}

	if len(failures) > 0 {
		return &provisioning.PartialFailure{Failures: failures, Critical: true}
	}
	return nil
}

// attachedSet queries the VM's current hostdevs for the idempotency check.
// In dry-run mode the VM may not exist yet; an unanswerable query then
// counts as "nothing attached" so the intended attachments still get
// recorded.
func (m *Manager) attachedSet(ctx *provisioning.Context, vm string) (map[pci.Address]bool, error) {
	current, err := m.Hypervisor.AttachedHostdevs(ctx, vm)
	if err != nil {
		if m.Gateway.DryRun() {
			return make(map[pci.Address]bool), nil
		}
		return nil, &provisioning.ExternalError{Collaborator: "hypervisor", Op: "list hostdevs of " + vm, Err: err}
	}
	set := make(map[pci.Address]bool, len(current))
	for _, a := range current {
		set[a] = true
	}
	return set, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
