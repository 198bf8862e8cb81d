package steps

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/virtforge/internal/alloc"
	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/execute"
	"github.com/virtforge/virtforge/internal/pci"
	"github.com/virtforge/virtforge/internal/platform/probe"
	"github.com/virtforge/virtforge/internal/provisioning"
	vtest "github.com/virtforge/virtforge/internal/testing"
	"github.com/virtforge/virtforge/internal/topology"
)

// fixture wires a full provisioning context around in-memory fakes
// sharing one call log.
type fixture struct {
	ctx    *provisioning.Context
	cfg    *config.Config
	gw     *execute.Gateway
	log    *vtest.CallLog
	virsh  *vtest.FakeManager
	pkg    *vtest.FakeInstaller
	probe  *vtest.FakeProber
	runner *vtest.FakeRunner
	obs    *vtest.RecordingObserver
}

// twoNodeHost is 8 cpus split over 2 NUMA nodes with 16 GB memory.
func twoNodeHost() *topology.Host {
	return &topology.Host{
		TotalVCPUs:    8,
		TotalMemoryMB: 16384,
		NUMANodes: []topology.NUMANode{
			{ID: 0, CPUIDs: []int{0, 1, 2, 3}},
			{ID: 1, CPUIDs: []int{4, 5, 6, 7}},
		},
	}
}

func newFixture(t *testing.T, mode execute.Mode) *fixture {
	t.Helper()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "virtforge.yaml"))
	require.NoError(t, err)

	log := &vtest.CallLog{}
	f := &fixture{
		cfg:    cfg,
		log:    log,
		virsh:  vtest.NewFakeManager(log),
		pkg:    vtest.NewFakeInstaller(log),
		probe:  vtest.NewFakeProber(log, twoNodeHost()),
		runner: vtest.NewFakeRunner(log),
		obs:    vtest.NewRecordingObserver(),
	}
	f.gw = execute.NewGateway(mode, nil)

	f.probe.NICs = []probe.NIC{
		{Name: "eth0", PCIAddress: mustAddr(t, "0000:01:00.0"), HasPCI: true},
		{Name: "eth1", PCIAddress: mustAddr(t, "0000:02:00.0"), HasPCI: true},
		{Name: "lo", HasPCI: false},
	}
	f.probe.Blocks = []probe.BlockDevice{{Name: "sda", SizeGB: 500}}
	f.runner.Outputs["grep -c -E vmx|svm /proc/cpuinfo"] = "8"
	f.runner.Outputs["cat /proc/cmdline"] = "BOOT_IMAGE=/vmlinuz root=/dev/sda2 quiet"

	state := config.NewStateStore(filepath.Join(t.TempDir(), "state.yaml"))
	accept := provisioning.ConfirmFunc(func(context.Context, string, string) (bool, error) {
		return true, nil
	})
	f.ctx = provisioning.NewContext(context.Background(), cfg, state, f.gw,
		f.virsh, f.pkg, f.probe, f.runner, f.obs, accept)
	return f
}

// seedAllocations persists an allocator result as the allocate step would.
func (f *fixture) seedAllocations(t *testing.T) []alloc.Allocation {
	t.Helper()
	allocs := []alloc.Allocation{
		{VCPUCount: 4, CPUSet: []int{0, 1, 2, 3}, NUMANode: 0, MemoryMB: 7168, DiskGB: 240},
		{VCPUCount: 4, CPUSet: []int{4, 5, 6, 7}, NUMANode: 1, MemoryMB: 7168, DiskGB: 240},
	}
	require.NoError(t, f.cfg.SaveAllocations(allocs))
	return allocs
}

func TestRegistryOrderAndRebootTriggers(t *testing.T) {
	reg, err := BuildRegistry()
	require.NoError(t, err)
	assert.Equal(t, 10, reg.Len())

	defs := reg.Definitions()
	assert.Equal(t, PreflightID, defs[0].ID)
	assert.Equal(t, FinalizeID, defs[len(defs)-1].ID)

	assert.ElementsMatch(t, []string{KernelID, NetworkID}, RebootTriggers())
}

func TestPreflightPasses(t *testing.T) {
	f := newFixture(t, execute.Execute)
	assert.NoError(t, (&Preflight{}).Run(f.ctx))
}

func TestPreflightRejectsHostWithoutVirtualization(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.runner.Outputs["grep -c -E vmx|svm /proc/cpuinfo"] = "0"

	err := (&Preflight{}).Run(f.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "virtualization")
}

func TestPreflightRejectsMoreVMsThanVCPUs(t *testing.T) {
	f := newFixture(t, execute.Execute)
	require.NoError(t, f.cfg.Set(config.KeyVMCount, "99"))

	assert.Error(t, (&Preflight{}).Check(f.ctx))
}

func TestPackagesInstallsStackAndEnablesLibvirtd(t *testing.T) {
	f := newFixture(t, execute.Execute)

	require.NoError(t, (&Packages{}).Run(f.ctx))
	for _, p := range virtPackages {
		assert.True(t, f.pkg.Installed(p), "expected %s installed", p)
	}
	assert.True(t, f.log.Contains("systemctl enable --now libvirtd"))
}

func TestKernelAppliesIOMMUArgs(t *testing.T) {
	f := newFixture(t, execute.Execute)

	require.NoError(t, (&Kernel{}).Run(f.ctx))
	assert.True(t, f.log.Contains("grubby --update-kernel=ALL"))
	assert.True(t, f.log.Contains("intel_iommu=on iommu=pt"))
}

func TestKernelNotApplicableWhenArgsPresent(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.runner.Outputs["cat /proc/cmdline"] = "BOOT_IMAGE=/vmlinuz intel_iommu=on iommu=pt quiet"

	err := (&Kernel{}).Run(f.ctx)
	assert.ErrorIs(t, err, provisioning.ErrNotApplicable)
	assert.False(t, f.log.Contains("grubby"))
}

func TestKernelPicksAMDArgs(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.runner.Outputs["grep -m1 vendor_id /proc/cpuinfo"] = "vendor_id\t: AuthenticAMD"

	require.NoError(t, (&Kernel{}).Run(f.ctx))
	assert.True(t, f.log.Contains("amd_iommu=on iommu=pt"))
}

func TestNetworkCreatesBridgeWithUplink(t *testing.T) {
	f := newFixture(t, execute.Execute)
	// eth0 is reserved for passthrough, so eth1 must be the uplink.
	require.NoError(t, f.cfg.Set(config.KeyPassthroughNICs, "eth0"))

	require.NoError(t, (&Network{}).Run(f.ctx))
	assert.True(t, f.log.Contains("type bridge ifname br0"))
	assert.True(t, f.log.Contains("type bridge-slave ifname eth1 master br0"))
	assert.True(t, f.log.Contains("con up br0"))
}

func TestNetworkNotApplicableWhenBridgeExists(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.probe.NICs = append(f.probe.NICs, probe.NIC{Name: "br0", HasPCI: false})

	err := (&Network{}).Run(f.ctx)
	assert.ErrorIs(t, err, provisioning.ErrNotApplicable)
}

func TestNetworkFailsWithoutUplink(t *testing.T) {
	f := newFixture(t, execute.Execute)
	require.NoError(t, f.cfg.Set(config.KeyPassthroughNICs, "eth0,eth1"))

	err := (&Network{}).Run(f.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uplink")
}

func TestStorageCreatesPoolDirectory(t *testing.T) {
	f := newFixture(t, execute.Execute)

	require.NoError(t, (&Storage{}).Run(f.ctx))
	assert.True(t, f.log.Contains("install -d -m 0711 /var/lib/virtforge/images"))
}

func TestAllocatePersistsDisjointPlan(t *testing.T) {
	f := newFixture(t, execute.Execute)

	require.NoError(t, (&Allocate{}).Run(f.ctx))

	allocs, err := f.cfg.Allocations()
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.True(t, alloc.Disjoint(allocs))

	// (16384 - 2048) / 2 memory, (500 - 20) / 2 disk
	assert.Equal(t, 7168, allocs[0].MemoryMB)
	assert.Equal(t, 240, allocs[0].DiskGB)
	assert.Equal(t, 4, allocs[0].VCPUCount)

	assert.NoError(t, (&Allocate{}).Check(f.ctx))
}

func TestAllocateHonorsDiskOverride(t *testing.T) {
	f := newFixture(t, execute.Execute)
	require.NoError(t, f.cfg.Set(config.KeyDiskTotalGB, "100"))

	require.NoError(t, (&Allocate{}).Run(f.ctx))
	allocs, err := f.cfg.Allocations()
	require.NoError(t, err)
	assert.Equal(t, 50, allocs[0].DiskGB)
}

func TestAllocateEmitsShortfallWarnings(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.probe.Host = &topology.Host{
		TotalVCPUs:    5,
		TotalMemoryMB: 16384,
		NUMANodes: []topology.NUMANode{
			{ID: 0, CPUIDs: []int{0, 1, 2, 3}},
			{ID: 1, CPUIDs: []int{4}},
		},
	}

	require.NoError(t, (&Allocate{}).Run(f.ctx))
	warnings := f.obs.EventsOfType(provisioning.EventValidationWarning)
	require.NotEmpty(t, warnings)
	assert.Equal(t, AllocateID, warnings[0].StepID)
}

func TestAllocateCheckRejectsCountMismatch(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.seedAllocations(t)
	require.NoError(t, f.cfg.Set(config.KeyVMCount, "3"))

	assert.Error(t, (&Allocate{}).Check(f.ctx))
}

func TestDeployRequiresAllocations(t *testing.T) {
	f := newFixture(t, execute.Execute)

	err := (&Deploy{}).Run(f.ctx)
	var verr *provisioning.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Prerequisite, "allocations")
}

func TestDeployDefinesAndStartsEachGuest(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.seedAllocations(t)

	require.NoError(t, (&Deploy{}).Run(f.ctx))

	for i := 1; i <= 2; i++ {
		name := "guest" + strconv.Itoa(i)
		st, err := f.virsh.State(f.ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "running", string(st))
	}
	assert.True(t, f.log.Contains("qemu-img create -f qcow2 /var/lib/virtforge/images/guest1.qcow2 240G"))
	assert.NoError(t, (&Deploy{}).Check(f.ctx))
}

func TestDeploySkipsExistingGuests(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.seedAllocations(t)
	f.virsh.AddDomain("guest1", "running")

	require.NoError(t, (&Deploy{}).Run(f.ctx))
	assert.False(t, f.log.Contains("qemu-img create -f qcow2 /var/lib/virtforge/images/guest1.qcow2 240G"))
	assert.True(t, f.log.Contains("qemu-img create -f qcow2 /var/lib/virtforge/images/guest2.qcow2 240G"))
}

func TestPassthroughNotApplicableWithoutReservedNICs(t *testing.T) {
	f := newFixture(t, execute.Execute)

	err := (&Passthrough{}).Run(f.ctx)
	assert.ErrorIs(t, err, provisioning.ErrNotApplicable)
}

func TestPassthroughAttachesReservedDevices(t *testing.T) {
	f := newFixture(t, execute.Execute)
	require.NoError(t, f.cfg.Set(config.KeyPassthroughNICs, "eth0,eth1"))
	f.virsh.AddDomain("guest1", "shut off")
	f.virsh.AddDomain("guest2", "shut off")

	require.NoError(t, (&Passthrough{}).Run(f.ctx))

	require.Len(t, f.virsh.Hostdevs("guest1"), 1)
	require.Len(t, f.virsh.Hostdevs("guest2"), 1)
	assert.Equal(t, "0000:01:00.0", f.virsh.Hostdevs("guest1")[0].String())
	assert.Equal(t, "0000:02:00.0", f.virsh.Hostdevs("guest2")[0].String())

	persisted, err := f.cfg.AssignedDevices()
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	// Second pass is a no-op thanks to the idempotency query.
	require.NoError(t, (&Passthrough{}).Run(f.ctx))
	assert.Len(t, f.virsh.Hostdevs("guest1"), 1)

	assert.NoError(t, (&Passthrough{}).Check(f.ctx))
}

func TestPassthroughWarnsOnUnknownReservedName(t *testing.T) {
	f := newFixture(t, execute.Execute)
	require.NoError(t, f.cfg.Set(config.KeyPassthroughNICs, "eth0,eth9"))
	f.virsh.AddDomain("guest1", "shut off")
	f.virsh.AddDomain("guest2", "shut off")

	require.NoError(t, (&Passthrough{}).Run(f.ctx))
	warnings := f.obs.EventsOfType(provisioning.EventValidationWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "eth9")
}

func TestPinningAppliesPersistedCPUSets(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.seedAllocations(t)
	f.virsh.AddDomain("guest1", "running")
	f.virsh.AddDomain("guest2", "running")

	require.NoError(t, (&Pinning{}).Run(f.ctx))

	// 1:1 vcpu pins, whole-set emulator pin, per-node memory policy.
	assert.True(t, f.log.Contains("virsh.PinVCPU(guest1, 0, [0])"))
	assert.True(t, f.log.Contains("virsh.PinVCPU(guest1, 3, [3])"))
	assert.True(t, f.log.Contains("virsh.PinVCPU(guest2, 0, [4])"))
	assert.True(t, f.log.Contains("virsh.PinEmulator(guest1, [0 1 2 3])"))
	assert.True(t, f.log.Contains("virsh.SetNUMAPolicy(guest2, 1)"))

	assert.NoError(t, (&Pinning{}).Check(f.ctx))
}

func TestPinningRequiresAllocations(t *testing.T) {
	f := newFixture(t, execute.Execute)

	err := (&Pinning{}).Run(f.ctx)
	var verr *provisioning.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestFinalizeSurfacesFirstFailingPredecessor(t *testing.T) {
	f := newFixture(t, execute.Execute)
	f.runner.Outputs["grep -c -E vmx|svm /proc/cpuinfo"] = "0"

	err := (&Finalize{}).Run(f.ctx)
	require.Error(t, err)

	warnings := f.obs.EventsOfType(provisioning.EventValidationWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, PreflightID, warnings[0].StepID)
}

func TestDryRunTouchesNoCollaborators(t *testing.T) {
	f := newFixture(t, execute.Simulate)
	f.seedAllocations(t)

	require.NoError(t, (&Storage{}).Run(f.ctx))
	require.NoError(t, (&Deploy{}).Run(f.ctx))

	assert.False(t, f.log.Contains("system.Run("))
	assert.False(t, f.log.Contains("virsh.Define"))
	assert.False(t, f.log.Contains("virsh.Start"))
	assert.NotEmpty(t, f.gw.Simulated())

	// No domain was actually created.
	exists, err := f.virsh.DomainExists(f.ctx, "guest1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVMNames(t *testing.T) {
	f := newFixture(t, execute.Execute)
	require.NoError(t, f.cfg.Set(config.KeyVMCount, "3"))
	require.NoError(t, f.cfg.Set(config.KeyVMNamePrefix, "node"))

	assert.Equal(t, []string{"node1", "node2", "node3"}, vmNames(f.cfg))
}

func mustAddr(t *testing.T, s string) pci.Address {
	t.Helper()
	addr, err := pci.Parse(s)
	require.NoError(t, err)
	return addr
}
