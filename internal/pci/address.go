// Package pci parses and formats PCI bus addresses.
package pci

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a PCI device by its position on the bus.
type Address struct {
	Domain   uint16 `yaml:"domain"`
	Bus      uint8  `yaml:"bus"`
	Slot     uint8  `yaml:"slot"`
	Function uint8  `yaml:"function"`
}

// Parse accepts the full "DDDD:BB:SS.F" form or the short "BB:SS.F" form,
// all fields hex. The short form defaults the domain to 0000, matching how
// lspci and sysfs abbreviate devices on domain 0.
func Parse(s string) (Address, error) {
	var addr Address

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 3:
		domain, err := strconv.ParseUint(parts[0], 16, 16)
		if err != nil {
			return addr, fmt.Errorf("invalid pci domain %q in %q", parts[0], s)
		}
		addr.Domain = uint16(domain)
		parts = parts[1:]
	case 2:
		// domain stays 0000
	default:
		return addr, fmt.Errorf("invalid pci address %q", s)
	}

	bus, err := strconv.ParseUint(parts[0], 16, 8)
	if err != nil {
		return addr, fmt.Errorf("invalid pci bus %q in %q", parts[0], s)
	}

	slotFn := strings.Split(parts[1], ".")
	if len(slotFn) != 2 {
		return addr, fmt.Errorf("invalid pci slot.function %q in %q", parts[1], s)
	}
	slot, err := strconv.ParseUint(slotFn[0], 16, 8)
	if err != nil {
		return addr, fmt.Errorf("invalid pci slot %q in %q", slotFn[0], s)
	}
	fn, err := strconv.ParseUint(slotFn[1], 16, 8)
	if err != nil || fn > 7 {
		return addr, fmt.Errorf("invalid pci function %q in %q", slotFn[1], s)
	}

	addr.Bus = uint8(bus)
	addr.Slot = uint8(slot)
	addr.Function = uint8(fn)
	return addr, nil
}

// String returns the canonical full form, e.g. "0000:8b:11.0".
func (a Address) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", a.Domain, a.Bus, a.Slot, a.Function)
}

// Hex helpers for XML attributes, which libvirt expects 0x-prefixed.

// DomainHex returns the domain as "0x0000".
func (a Address) DomainHex() string { return fmt.Sprintf("0x%04x", a.Domain) }

// BusHex returns the bus as "0x8b".
func (a Address) BusHex() string { return fmt.Sprintf("0x%02x", a.Bus) }

// SlotHex returns the slot as "0x11".
func (a Address) SlotHex() string { return fmt.Sprintf("0x%02x", a.Slot) }

// FunctionHex returns the function as "0x0".
func (a Address) FunctionHex() string { return fmt.Sprintf("0x%x", a.Function) }
