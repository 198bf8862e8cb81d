package steps

import (
	"github.com/virtforge/virtforge/internal/provisioning"
	"github.com/virtforge/virtforge/internal/util/prerequisites"
)

// virtPackages is the KVM stack the host needs. Installation is
// idempotent at the package manager, so retries are safe.
var virtPackages = []string{
	"qemu-kvm",
	"libvirt",
	"libvirt-client",
	"virt-install",
	"bridge-utils",
}

// Packages installs the virtualization stack.
type Packages struct{}

// Run implements provisioning.Step.
func (s *Packages) Run(ctx *provisioning.Context) error {
	err := ctx.Gateway.Do(
		"install virtualization packages: qemu-kvm libvirt libvirt-client virt-install bridge-utils",
		func() error { return ctx.Packages.Install(ctx, virtPackages...) },
	)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "package manager", Op: "install", Err: err}
	}

	return ctx.Gateway.Do(
		"enable and start libvirtd",
		func() error { return ctx.System.Run(ctx, "systemctl", "enable", "--now", "libvirtd") },
	)
}

// Check implements provisioning.Step: the step's postcondition is that
// the client tools the rest of the pipeline shells out to are present.
func (s *Packages) Check(_ *provisioning.Context) error {
	return prerequisites.Check(prerequisites.DefaultTools()).Error()
}
