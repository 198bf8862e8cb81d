// Package steps defines the installation pipeline: the ordered step
// registry and every step handler. Steps perform all mutations through
// the context's gateway and read host state only through the platform
// collaborators, so the whole pipeline runs unchanged in dry-run mode.
package steps

import (
	"fmt"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Step identifiers, in pipeline order. Ids are stable across releases
// because persisted state references them.
const (
	PreflightID   = "00-preflight"
	PackagesID    = "01-packages"
	KernelID      = "02-kernel"
	NetworkID     = "03-network"
	StorageID     = "04-storage"
	AllocateID    = "05-allocate"
	DeployID      = "06-deploy"
	PassthroughID = "07-passthrough"
	PinningID     = "08-pinning"
	FinalizeID    = "09-finalize"
)

// BuildRegistry returns the full, ordered step table.
func BuildRegistry() (*provisioning.Registry, error) {
	return provisioning.NewRegistry(
		provisioning.StepDefinition{ID: PreflightID, Name: "Preflight hardware checks", Handler: &Preflight{}},
		provisioning.StepDefinition{ID: PackagesID, Name: "Install virtualization packages", Handler: &Packages{}},
		provisioning.StepDefinition{ID: KernelID, Name: "Configure kernel parameters", Handler: &Kernel{}},
		provisioning.StepDefinition{ID: NetworkID, Name: "Configure host bridge network", Handler: &Network{}},
		provisioning.StepDefinition{ID: StorageID, Name: "Prepare VM image storage", Handler: &Storage{}},
		provisioning.StepDefinition{ID: AllocateID, Name: "Allocate CPU, memory and disk", Handler: &Allocate{}},
		provisioning.StepDefinition{ID: DeployID, Name: "Deploy guest VMs", Handler: &Deploy{}},
		provisioning.StepDefinition{ID: PassthroughID, Name: "Attach passthrough network devices", Handler: &Passthrough{}},
		provisioning.StepDefinition{ID: PinningID, Name: "Pin vcpus and NUMA memory", Handler: &Pinning{}},
		provisioning.StepDefinition{ID: FinalizeID, Name: "Final validation", Handler: &Finalize{}},
	)
}

// RebootTriggers lists the steps whose changes only take effect after a
// host restart.
func RebootTriggers() []string {
	return []string{KernelID, NetworkID}
}

// vmNames derives the guest names from configuration: <prefix>1..<prefix>N.
func vmNames(cfg *config.Config) []string {
	count := cfg.Int(config.KeyVMCount)
	prefix := cfg.String(config.KeyVMNamePrefix)
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return names
}
