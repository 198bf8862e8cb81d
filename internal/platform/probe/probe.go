// Package probe is the hardware discovery boundary. It answers three
// questions, all read-only: what CPUs and NUMA nodes does the host have,
// which network interfaces exist and where do they sit on the PCI bus, and
// which block devices are available. Results are plain data handed to the
// allocator and the device assignment manager.
package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/virtforge/virtforge/internal/pci"
	"github.com/virtforge/virtforge/internal/topology"
)

// NIC is a discovered network interface. Order of discovery is preserved
// by Prober implementations because device assignment tie-breaks on it.
type NIC struct {
	Name       string
	PCIAddress pci.Address
	// HasPCI is false for virtual interfaces (bridges, bonds, loopback)
	// that have no bus address.
	HasPCI bool
}

// BlockDevice is a discovered disk.
type BlockDevice struct {
	Name   string
	SizeGB int
}

// Prober enumerates host hardware.
type Prober interface {
	// Topology reports CPU count, memory and NUMA layout.
	Topology(ctx context.Context) (*topology.Host, error)

	// NetworkInterfaces lists interfaces in discovery order.
	NetworkInterfaces(ctx context.Context) ([]NIC, error)

	// BlockDevices lists disks.
	BlockDevices(ctx context.Context) ([]BlockDevice, error)
}

// Sysfs reads hardware information from /sys and /proc.
type Sysfs struct {
	// Root is prefixed to all paths; "" means the real filesystem.
	// Tests point it at a fixture tree.
	Root string
}

// NewSysfs returns a Prober over the real /sys and /proc.
func NewSysfs() *Sysfs {
	return &Sysfs{}
}

func (s *Sysfs) path(p string) string {
	return filepath.Join(s.Root, p)
}

// Topology implements Prober.
func (s *Sysfs) Topology(_ context.Context) (*topology.Host, error) {
	host := &topology.Host{}

	cpus, err := parseIDList(s.path("/sys/devices/system/cpu/online"))
	if err != nil {
		return nil, fmt.Errorf("read online cpus: %w", err)
	}
	host.TotalVCPUs = len(cpus)

	memKB, err := meminfoTotalKB(s.path("/proc/meminfo"))
	if err != nil {
		return nil, fmt.Errorf("read meminfo: %w", err)
	}
	host.TotalMemoryMB = memKB / 1024

	entries, err := os.ReadDir(s.path("/sys/devices/system/node"))
	if err != nil {
		// No NUMA information is a valid topology.
		return host, nil
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node"))
		if err != nil {
			continue
		}
		ids, err := parseIDList(s.path(filepath.Join("/sys/devices/system/node", e.Name(), "cpulist")))
		if err != nil {
			return nil, fmt.Errorf("read node %d cpulist: %w", id, err)
		}
		host.NUMANodes = append(host.NUMANodes, topology.NUMANode{ID: id, CPUIDs: ids})
	}
	sort.Slice(host.NUMANodes, func(i, j int) bool { return host.NUMANodes[i].ID < host.NUMANodes[j].ID })

	return host, nil
}

// NetworkInterfaces implements Prober. The bus address comes from the
// device symlink target under /sys/class/net/<if>/device, whose basename
// is the full DDDD:BB:SS.F form.
func (s *Sysfs) NetworkInterfaces(_ context.Context) ([]NIC, error) {
	entries, err := os.ReadDir(s.path("/sys/class/net"))
	if err != nil {
		return nil, fmt.Errorf("read /sys/class/net: %w", err)
	}

	var nics []NIC
	for _, e := range entries {
		name := e.Name()
		if name == "lo" {
			continue
		}
		nic := NIC{Name: name}

		target, err := os.Readlink(s.path(filepath.Join("/sys/class/net", name, "device")))
		if err == nil {
			addr, perr := pci.Parse(filepath.Base(target))
			if perr == nil {
				nic.PCIAddress = addr
				nic.HasPCI = true
			}
		}
		nics = append(nics, nic)
	}
	return nics, nil
}

// BlockDevices implements Prober. Partitions and virtual devices
// (loop, ram, device-mapper) are excluded.
func (s *Sysfs) BlockDevices(_ context.Context) ([]BlockDevice, error) {
	entries, err := os.ReadDir(s.path("/sys/block"))
	if err != nil {
		return nil, fmt.Errorf("read /sys/block: %w", err)
	}

	var devs []BlockDevice
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") || strings.HasPrefix(name, "dm-") {
			continue
		}
		raw, err := os.ReadFile(s.path(filepath.Join("/sys/block", name, "size")))
		if err != nil {
			continue
		}
		sectors, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			continue
		}
		devs = append(devs, BlockDevice{
			Name:   name,
			SizeGB: int(sectors * 512 / (1 << 30)),
		})
	}
	return devs, nil
}

// parseIDList parses the kernel's "0-21,44-65" id list format.
func parseIDList(path string) ([]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ids []int
	for _, part := range strings.Split(strings.TrimSpace(string(raw)), ",") {
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("bad id range %q", part)
			}
			end, err := strconv.Atoi(hi)
			if err != nil || end < start {
				return nil, fmt.Errorf("bad id range %q", part)
			}
			for id := start; id <= end; id++ {
				ids = append(ids, id)
			}
		} else {
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("bad id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// meminfoTotalKB extracts MemTotal from /proc/meminfo.
func meminfoTotalKB(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			break
		}
		return kb, nil
	}
	return 0, fmt.Errorf("MemTotal not found in %s", path)
}
