// Package virsh is the hypervisor control plane boundary. The installer
// talks to libvirt exclusively through the Manager interface; the real
// implementation shells out to virsh, and tests substitute a recording
// fake. Documents crossing this boundary (domain definitions, hostdev
// fragments) are built as typed structs and serialized here, never by
// string concatenation.
package virsh

import (
	"context"

	"github.com/virtforge/virtforge/internal/pci"
)

// DomainState is the coarse libvirt domain state the installer cares about.
type DomainState string

const (
	StateRunning  DomainState = "running"
	StateShutOff  DomainState = "shut off"
	StatePaused   DomainState = "paused"
	StateNoDomain DomainState = "no domain"
)

// Manager is the hypervisor control plane consumed by the installer.
//
// Attach and detach operate on the persistent definition (applied on next
// boot), matching how passthrough devices are handed to guests.
type Manager interface {
	// DomainExists reports whether a domain with this name is defined.
	DomainExists(ctx context.Context, name string) (bool, error)

	// State returns the domain's current state, StateNoDomain if undefined.
	State(ctx context.Context, name string) (DomainState, error)

	// Define creates or replaces a persistent domain from its XML definition.
	Define(ctx context.Context, domainXML []byte) error

	// Undefine removes a persistent domain definition.
	Undefine(ctx context.Context, name string) error

	// Start boots a defined domain.
	Start(ctx context.Context, name string) error

	// Shutdown requests a graceful guest shutdown.
	Shutdown(ctx context.Context, name string) error

	// ForceStop hard-stops a domain.
	ForceStop(ctx context.Context, name string) error

	// AttachedHostdevs lists the PCI hostdev addresses currently present
	// in the domain's persistent definition.
	AttachedHostdevs(ctx context.Context, name string) ([]pci.Address, error)

	// AttachHostdev adds a PCI hostdev to the persistent definition.
	AttachHostdev(ctx context.Context, name string, addr pci.Address) error

	// DetachHostdev removes a PCI hostdev from the persistent definition.
	DetachHostdev(ctx context.Context, name string, addr pci.Address) error

	// PinVCPU pins one vcpu of the domain to a physical cpuset.
	PinVCPU(ctx context.Context, name string, vcpu int, cpuset []int) error

	// PinEmulator pins the domain's emulator thread to a physical cpuset.
	PinEmulator(ctx context.Context, name string, cpuset []int) error

	// SetNUMAPolicy binds the domain's memory to a NUMA node.
	SetNUMAPolicy(ctx context.Context, name string, node int) error
}
