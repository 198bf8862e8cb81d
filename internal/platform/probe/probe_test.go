package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/virtforge/internal/pci"
)

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestTopology_TwoNodes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "sys/devices/system/cpu/online", "0-43\n")
	writeFile(t, root, "proc/meminfo", "MemTotal:       263921664 kB\nMemFree:        1000 kB\n")
	writeFile(t, root, "sys/devices/system/node/node0/cpulist", "0-21\n")
	writeFile(t, root, "sys/devices/system/node/node1/cpulist", "22-43\n")

	host, err := (&Sysfs{Root: root}).Topology(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 44, host.TotalVCPUs)
	assert.Equal(t, 263921664/1024, host.TotalMemoryMB)
	require.Len(t, host.NUMANodes, 2)
	assert.Equal(t, 0, host.NUMANodes[0].ID)
	assert.Len(t, host.NUMANodes[0].CPUIDs, 22)
	assert.Equal(t, 22, host.NUMANodes[1].CPUIDs[0])
	require.NoError(t, host.Validate())
}

func TestTopology_NoNUMADirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "sys/devices/system/cpu/online", "0-3\n")
	writeFile(t, root, "proc/meminfo", "MemTotal: 8388608 kB\n")

	host, err := (&Sysfs{Root: root}).Topology(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, host.TotalVCPUs)
	assert.Empty(t, host.NUMANodes)
}

func TestNetworkInterfaces(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	netDir := filepath.Join(root, "sys/class/net")
	require.NoError(t, os.MkdirAll(filepath.Join(netDir, "eno1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(netDir, "br0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(netDir, "lo"), 0o755))

	// eno1 has a PCI device symlink, br0 is virtual.
	pciDir := filepath.Join(root, "sys/devices/pci0000:8b/0000:8b:11.0")
	require.NoError(t, os.MkdirAll(pciDir, 0o755))
	require.NoError(t, os.Symlink(pciDir, filepath.Join(netDir, "eno1", "device")))

	nics, err := (&Sysfs{Root: root}).NetworkInterfaces(context.Background())
	require.NoError(t, err)
	require.Len(t, nics, 2)

	byName := map[string]NIC{}
	for _, n := range nics {
		byName[n.Name] = n
	}
	require.Contains(t, byName, "eno1")
	assert.True(t, byName["eno1"].HasPCI)
	assert.Equal(t, pci.Address{Bus: 0x8b, Slot: 0x11}, byName["eno1"].PCIAddress)
	assert.False(t, byName["br0"].HasPCI)
}

func TestBlockDevices(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// 1 TiB disk = 2147483648 sectors of 512 bytes.
	writeFile(t, root, "sys/block/sda/size", "2147483648\n")
	writeFile(t, root, "sys/block/loop0/size", "4096\n")

	devs, err := (&Sysfs{Root: root}).BlockDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "sda", devs[0].Name)
	assert.Equal(t, 1024, devs[0].SizeGB)
}

func TestParseIDList(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "list", "0-2,5,8-9\n")

	ids, err := parseIDList(filepath.Join(root, "list"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 5, 8, 9}, ids)

	writeFile(t, root, "bad", "3-1\n")
	_, err = parseIDList(filepath.Join(root, "bad"))
	assert.Error(t, err)
}
