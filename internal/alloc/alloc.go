// Package alloc partitions the host's fixed resource pool across the guest
// VMs. The split is deterministic: the same inputs always yield the same
// allocations, which is what lets later steps reuse persisted results
// instead of recomputing them.
package alloc

import (
	"fmt"

	"github.com/virtforge/virtforge/internal/topology"
)

// Allocation is one VM's share of the host.
type Allocation struct {
	// VCPUCount is the number of virtual CPUs the VM gets.
	VCPUCount int `yaml:"vcpu_count"`
	// CPUSet lists the physical CPU ids the VM's vcpus are pinned to,
	// as explicit ids rather than ranges.
	CPUSet []int `yaml:"cpuset"`
	// NUMANode is the node the cpuset was taken from, or -1 when the
	// host exposes fewer than two nodes.
	NUMANode int `yaml:"numa_node"`
	// MemoryMB and DiskGB are the VM's memory and image disk shares.
	MemoryMB int `yaml:"memory_mb"`
	DiskGB   int `yaml:"disk_gb"`
}

// Request describes one allocator invocation.
type Request struct {
	VMCount    int
	TotalVCPUs int
	MemoryMB   int
	DiskGB     int
	Topology   *topology.Host
}

// Result carries the computed allocations plus any per-VM shortfall notes.
// A shortfall (a NUMA node with fewer CPUs than the per-VM share) is not an
// error; the VM simply gets what the node has.
type Result struct {
	Allocations []Allocation
	Shortfalls  []string
}

// Compute splits the request's totals evenly across VMCount VMs.
//
// Shares use floor division; remainders are deliberately dropped, never
// redistributed, so every VM's share is identical. With two or more NUMA
// nodes, VM k draws its cpuset from node k mod nodeCount to keep vcpus
// memory-local. With fewer than two nodes the id space is treated as flat
// and each VM gets a contiguous non-overlapping range.
func Compute(req Request) (*Result, error) {
	if req.VMCount < 1 {
		return nil, fmt.Errorf("vm count must be at least 1, got %d", req.VMCount)
	}
	if req.TotalVCPUs < req.VMCount {
		return nil, fmt.Errorf("cannot split %d vcpus across %d vms", req.TotalVCPUs, req.VMCount)
	}

	perVCPU := req.TotalVCPUs / req.VMCount
	perMemory := req.MemoryMB / req.VMCount
	perDisk := req.DiskGB / req.VMCount

	res := &Result{}

	var nodes []topology.NUMANode
	if req.Topology != nil {
		nodes = req.Topology.SortedNodes()
	}
	// Cursor per node so a node visited twice (more VMs than nodes) hands
	// out successive slices instead of the same CPUs again.
	offsets := make([]int, len(nodes))

	for k := 0; k < req.VMCount; k++ {
		a := Allocation{
			VCPUCount: perVCPU,
			MemoryMB:  perMemory,
			DiskGB:    perDisk,
			NUMANode:  -1,
		}

		if len(nodes) >= 2 {
			idx := k % len(nodes)
			node := nodes[idx]
			a.NUMANode = node.ID
			avail := node.CPUIDs[offsets[idx]:]
			want := perVCPU
			if len(avail) < want {
				res.Shortfalls = append(res.Shortfalls, fmt.Sprintf(
					"vm %d: numa node %d has %d cpus left, wanted %d", k, node.ID, len(avail), want))
				want = len(avail)
			}
			a.CPUSet = append([]int(nil), avail[:want]...)
			a.VCPUCount = want
			offsets[idx] += want
		} else {
			for id := k * perVCPU; id < (k+1)*perVCPU; id++ {
				a.CPUSet = append(a.CPUSet, id)
			}
		}

		res.Allocations = append(res.Allocations, a)
	}

	return res, nil
}

// Disjoint reports whether no CPU id appears in more than one allocation.
// Compute guarantees this by construction for any single invocation; the
// check exists so persisted allocations can be re-verified before use.
func Disjoint(allocs []Allocation) bool {
	seen := make(map[int]bool)
	for _, a := range allocs {
		for _, id := range a.CPUSet {
			if seen[id] {
				return false
			}
			seen[id] = true
		}
	}
	return true
}
