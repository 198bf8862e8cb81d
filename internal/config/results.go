package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/virtforge/virtforge/internal/alloc"
)

// Allocation and device-assignment results are computed once, by their
// steps, and persisted into the store so every later step reuses the same
// numbers instead of re-deriving topology. They are stored as YAML
// documents inside a string value, which exercises the store's round-trip
// escaping rather than relying on a separate file.

// SaveAllocations persists the allocator's output.
func (c *Config) SaveAllocations(allocs []alloc.Allocation) error {
	out, err := yaml.Marshal(allocs)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	return c.Set(KeyAllocations, string(out))
}

// Allocations returns the persisted allocator output, or nil if the
// allocate step has not run yet.
func (c *Config) Allocations() ([]alloc.Allocation, error) {
	raw := c.String(KeyAllocations)
	if raw == "" {
		return nil, nil
	}
	var allocs []alloc.Allocation
	if err := yaml.Unmarshal([]byte(raw), &allocs); err != nil {
		return nil, fmt.Errorf("parse persisted allocations: %w", err)
	}
	return allocs, nil
}

// Assignments maps VM name to the PCI addresses (canonical string form)
// assigned to it, in assignment order.
type Assignments map[string][]string

// SaveAssignments persists the device partition.
func (c *Config) SaveAssignments(a Assignments) error {
	out, err := yaml.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assignments: %w", err)
	}
	return c.Set(KeyAssignments, string(out))
}

// AssignedDevices returns the persisted device partition, or nil if the
// passthrough step has not recorded one.
func (c *Config) AssignedDevices() (Assignments, error) {
	raw := c.String(KeyAssignments)
	if raw == "" {
		return nil, nil
	}
	var a Assignments
	if err := yaml.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("parse persisted assignments: %w", err)
	}
	return a, nil
}
