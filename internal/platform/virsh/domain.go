package virsh

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
)

// GuestSpec is what the deploy step knows about a guest; the domain
// document is derived from it.
type GuestSpec struct {
	Name     string
	VCPUs    int
	CPUSet   []int
	NUMANode int // -1 when the host is not NUMA-partitioned
	MemoryMB int
	DiskGB   int
	// PoolPath is the directory holding the guest's qcow2 image.
	PoolPath string
	// Bridge is the host bridge for the management interface.
	Bridge string
}

// domainDoc is the persistent definition handed to libvirt. Only the
// elements the installer actually sets are modeled.
type domainDoc struct {
	XMLName xml.Name  `xml:"domain"`
	Type    string    `xml:"type,attr"`
	Name    string    `xml:"name"`
	Memory  memoryEl  `xml:"memory"`
	VCPU    vcpuEl    `xml:"vcpu"`
	CPU     *cpuEl    `xml:"cpu,omitempty"`
	NUMA    *numaTune `xml:"numatune,omitempty"`
	OS      osEl      `xml:"os"`
	Devices devicesEl `xml:"devices"`
}

type memoryEl struct {
	Unit  string `xml:"unit,attr"`
	Value int    `xml:",chardata"`
}

type vcpuEl struct {
	Placement string `xml:"placement,attr,omitempty"`
	CPUSet    string `xml:"cpuset,attr,omitempty"`
	Value     int    `xml:",chardata"`
}

type cpuEl struct {
	Mode string `xml:"mode,attr"`
}

type numaTune struct {
	Memory numaMemory `xml:"memory"`
}

type numaMemory struct {
	Mode    string `xml:"mode,attr"`
	Nodeset string `xml:"nodeset,attr"`
}

type osEl struct {
	Type osType `xml:"type"`
	Boot bootEl `xml:"boot"`
}

type osType struct {
	Arch  string `xml:"arch,attr"`
	Value string `xml:",chardata"`
}

type bootEl struct {
	Dev string `xml:"dev,attr"`
}

type devicesEl struct {
	Disks      []diskEl      `xml:"disk"`
	Interfaces []interfaceEl `xml:"interface"`
	Console    consoleEl     `xml:"console"`
}

type diskEl struct {
	Type   string     `xml:"type,attr"`
	Device string     `xml:"device,attr"`
	Driver diskDriver `xml:"driver"`
	Source diskSource `xml:"source"`
	Target diskTarget `xml:"target"`
}

type diskDriver struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type diskSource struct {
	File string `xml:"file,attr"`
}

type diskTarget struct {
	Dev string `xml:"dev,attr"`
	Bus string `xml:"bus,attr"`
}

type interfaceEl struct {
	Type   string      `xml:"type,attr"`
	Source ifaceSource `xml:"source"`
	Model  ifaceModel  `xml:"model"`
}

type ifaceSource struct {
	Bridge string `xml:"bridge,attr"`
}

type ifaceModel struct {
	Type string `xml:"type,attr"`
}

type consoleEl struct {
	Type string `xml:"type,attr"`
}

// BuildDomainXML renders the persistent definition for a guest. The
// document pins placement statically to the guest's cpuset; per-vcpu and
// emulator pinning is applied afterwards by the pinning step.
func BuildDomainXML(spec GuestSpec) ([]byte, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("guest needs a name")
	}
	if spec.VCPUs < 1 || spec.MemoryMB < 1 {
		return nil, fmt.Errorf("guest %s has no resources (%d vcpus, %d MB)", spec.Name, spec.VCPUs, spec.MemoryMB)
	}

	doc := domainDoc{
		Type:   "kvm",
		Name:   spec.Name,
		Memory: memoryEl{Unit: "MiB", Value: spec.MemoryMB},
		VCPU:   vcpuEl{Placement: "static", CPUSet: cpuList(spec.CPUSet), Value: spec.VCPUs},
		CPU:    &cpuEl{Mode: "host-passthrough"},
		OS: osEl{
			Type: osType{Arch: "x86_64", Value: "hvm"},
			Boot: bootEl{Dev: "hd"},
		},
		Devices: devicesEl{
			Disks: []diskEl{{
				Type:   "file",
				Device: "disk",
				Driver: diskDriver{Name: "qemu", Type: "qcow2"},
				Source: diskSource{File: ImagePath(spec.PoolPath, spec.Name)},
				Target: diskTarget{Dev: "vda", Bus: "virtio"},
			}},
			Interfaces: []interfaceEl{{
				Type:   "bridge",
				Source: ifaceSource{Bridge: spec.Bridge},
				Model:  ifaceModel{Type: "virtio"},
			}},
			Console: consoleEl{Type: "pty"},
		},
	}
	if spec.NUMANode >= 0 {
		doc.NUMA = &numaTune{Memory: numaMemory{Mode: "strict", Nodeset: fmt.Sprintf("%d", spec.NUMANode)}}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal domain %s: %w", spec.Name, err)
	}
	return out, nil
}

// ImagePath is where a guest's disk image lives inside the pool.
func ImagePath(poolPath, guest string) string {
	return filepath.Join(poolPath, guest+".qcow2")
}
