package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	h := &Host{
		TotalVCPUs:    8,
		TotalMemoryMB: 16384,
		NUMANodes: []NUMANode{
			{ID: 0, CPUIDs: []int{0, 1, 2, 3}},
			{ID: 1, CPUIDs: []int{4, 5, 6, 7}},
		},
	}
	require.NoError(t, h.Validate())
}

func TestValidate_NoNUMAIsValid(t *testing.T) {
	t.Parallel()

	h := &Host{TotalVCPUs: 4, TotalMemoryMB: 8192}
	assert.NoError(t, h.Validate())
}

func TestValidate_CPUOutOfRange(t *testing.T) {
	t.Parallel()

	h := &Host{
		TotalVCPUs:    4,
		TotalMemoryMB: 8192,
		NUMANodes:     []NUMANode{{ID: 0, CPUIDs: []int{0, 1, 7}}},
	}
	err := h.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
}

func TestValidate_DuplicateCPU(t *testing.T) {
	t.Parallel()

	h := &Host{
		TotalVCPUs:    4,
		TotalMemoryMB: 8192,
		NUMANodes: []NUMANode{
			{ID: 0, CPUIDs: []int{0, 1}},
			{ID: 1, CPUIDs: []int{1, 2}},
		},
	}
	require.Error(t, h.Validate())
}

func TestSortedNodes(t *testing.T) {
	t.Parallel()

	h := &Host{
		TotalVCPUs:    4,
		TotalMemoryMB: 8192,
		NUMANodes: []NUMANode{
			{ID: 1, CPUIDs: []int{2, 3}},
			{ID: 0, CPUIDs: []int{0, 1}},
		},
	}
	nodes := h.SortedNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 0, nodes[0].ID)
	assert.Equal(t, 1, nodes[1].ID)
	// original slice untouched
	assert.Equal(t, 1, h.NUMANodes[0].ID)
}
