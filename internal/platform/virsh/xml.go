package virsh

import (
	"encoding/xml"
	"fmt"

	"github.com/virtforge/virtforge/internal/pci"
)

// PCIAddressElem is the <address> element used inside hostdev sources and
// device targets. Values are 0x-prefixed hex strings, as libvirt emits them.
type PCIAddressElem struct {
	Domain   string `xml:"domain,attr"`
	Bus      string `xml:"bus,attr"`
	Slot     string `xml:"slot,attr"`
	Function string `xml:"function,attr"`
}

// Hostdev is a PCI passthrough device fragment.
type Hostdev struct {
	XMLName xml.Name      `xml:"hostdev"`
	Mode    string        `xml:"mode,attr"`
	Type    string        `xml:"type,attr"`
	Managed string        `xml:"managed,attr"`
	Source  HostdevSource `xml:"source"`
}

// HostdevSource wraps the host-side address of a passthrough device.
type HostdevSource struct {
	Address PCIAddressElem `xml:"address"`
}

// HostdevFor builds the hostdev fragment for one PCI address, managed mode,
// so libvirt handles the vfio bind/unbind itself.
func HostdevFor(addr pci.Address) Hostdev {
	return Hostdev{
		Mode:    "subsystem",
		Type:    "pci",
		Managed: "yes",
		Source: HostdevSource{
			Address: PCIAddressElem{
				Domain:   addr.DomainHex(),
				Bus:      addr.BusHex(),
				Slot:     addr.SlotHex(),
				Function: addr.FunctionHex(),
			},
		},
	}
}

// MarshalHostdev serializes a hostdev fragment for virsh attach/detach.
func MarshalHostdev(h Hostdev) ([]byte, error) {
	out, err := xml.MarshalIndent(h, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal hostdev: %w", err)
	}
	return out, nil
}

// AddressOf converts a dumped <address> element back into a pci.Address.
func AddressOf(e PCIAddressElem) (pci.Address, error) {
	parse := func(s string, bits int) (uint64, error) {
		var v uint64
		if _, err := fmt.Sscanf(s, "0x%x", &v); err != nil {
			return 0, fmt.Errorf("bad hex attribute %q", s)
		}
		if v >= 1<<bits {
			return 0, fmt.Errorf("attribute %q out of range", s)
		}
		return v, nil
	}

	domain, err := parse(e.Domain, 16)
	if err != nil {
		return pci.Address{}, err
	}
	bus, err := parse(e.Bus, 8)
	if err != nil {
		return pci.Address{}, err
	}
	slot, err := parse(e.Slot, 8)
	if err != nil {
		return pci.Address{}, err
	}
	fn, err := parse(e.Function, 3)
	if err != nil {
		return pci.Address{}, err
	}

	return pci.Address{
		Domain:   uint16(domain),
		Bus:      uint8(bus),
		Slot:     uint8(slot),
		Function: uint8(fn),
	}, nil
}

// domainDump is the subset of a dumped domain definition the installer
// reads back: just enough to enumerate attached hostdevs.
type domainDump struct {
	XMLName xml.Name `xml:"domain"`
	Devices struct {
		Hostdevs []Hostdev `xml:"hostdev"`
	} `xml:"devices"`
}

// hostdevsFromDump extracts PCI hostdev addresses from a virsh dumpxml
// document. Non-PCI hostdevs (usb, scsi) are ignored.
func hostdevsFromDump(doc []byte) ([]pci.Address, error) {
	var dump domainDump
	if err := xml.Unmarshal(doc, &dump); err != nil {
		return nil, fmt.Errorf("parse domain xml: %w", err)
	}

	var addrs []pci.Address
	for _, h := range dump.Devices.Hostdevs {
		if h.Type != "pci" {
			continue
		}
		addr, err := AddressOf(h.Source.Address)
		if err != nil {
			return nil, fmt.Errorf("hostdev address: %w", err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
