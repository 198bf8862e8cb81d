// Package topology describes the hardware layout of the host as seen by
// the installer: how many vCPUs exist, how much memory is installed, and
// which CPU ids belong to which NUMA node.
//
// The types here are plain data. They are produced by the hardware probe
// (internal/platform/probe) and consumed by the resource allocator
// (internal/alloc); neither side needs to know how the other obtained or
// uses them.
package topology

import (
	"fmt"
	"sort"
)

// NUMANode is one NUMA node and the CPU ids local to it.
// CPU ids are kept in discovery order.
type NUMANode struct {
	ID     int   `yaml:"id"`
	CPUIDs []int `yaml:"cpu_ids"`
}

// Host is the hardware topology of the machine being provisioned.
type Host struct {
	TotalVCPUs    int        `yaml:"total_vcpus"`
	TotalMemoryMB int        `yaml:"total_memory_mb"`
	NUMANodes     []NUMANode `yaml:"numa_nodes"`
}

// Validate checks the topology for internal consistency. A topology with
// no NUMA information is valid; one that claims CPUs it does not have is not.
func (h *Host) Validate() error {
	if h.TotalVCPUs <= 0 {
		return fmt.Errorf("topology reports %d vcpus", h.TotalVCPUs)
	}
	if h.TotalMemoryMB <= 0 {
		return fmt.Errorf("topology reports %d MB memory", h.TotalMemoryMB)
	}
	seen := make(map[int]bool)
	for _, node := range h.NUMANodes {
		for _, id := range node.CPUIDs {
			if id < 0 || id >= h.TotalVCPUs {
				return fmt.Errorf("numa node %d lists cpu %d outside 0..%d", node.ID, id, h.TotalVCPUs-1)
			}
			if seen[id] {
				return fmt.Errorf("cpu %d appears in more than one numa node", id)
			}
			seen[id] = true
		}
	}
	return nil
}

// NodeCount returns the number of NUMA nodes the probe discovered.
func (h *Host) NodeCount() int {
	return len(h.NUMANodes)
}

// SortedNodes returns the NUMA nodes ordered by node id. The probe usually
// reports them in order already; allocation must not depend on that.
func (h *Host) SortedNodes() []NUMANode {
	nodes := make([]NUMANode, len(h.NUMANodes))
	copy(nodes, h.NUMANodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}
