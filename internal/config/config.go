// Package config holds everything the installer remembers between
// invocations: the key/value configuration store and the installation
// state marker. Both are YAML files rewritten whole on every mutation;
// write amplification is accepted in exchange for never having a
// partially updated store on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Declared configuration keys. Every key has a documented default; a key
// absent from the persisted file silently falls back to it.
const (
	// KeyVMCount is the number of guest VMs to carve the host into.
	KeyVMCount = "vm_count"
	// KeyVMNamePrefix names the guests: <prefix>1, <prefix>2, ...
	KeyVMNamePrefix = "vm_name_prefix"
	// KeyBridgeName is the host bridge the guests' management NICs join.
	KeyBridgeName = "bridge_name"
	// KeyImagePoolPath is the directory backing the VM image pool.
	KeyImagePoolPath = "image_pool_path"
	// KeyDiskTotalGB caps the disk pool split across guests; 0 means
	// probe the backing device.
	KeyDiskTotalGB = "disk_total_gb"
	// KeyPassthroughNICs lists interface names reserved for PCI
	// passthrough, comma-separated, in assignment order.
	KeyPassthroughNICs = "passthrough_nics"
	// KeyLibvirtURI is the hypervisor connection URI.
	KeyLibvirtURI = "libvirt_uri"
	// KeyAssumeYes answers every confirmation gate affirmatively; used
	// for unattended runs and forced when no TTY is present.
	KeyAssumeYes = "assume_yes"
	// KeyLogFile is where the run log is appended.
	KeyLogFile = "log_file"
	// KeyAllocations holds the allocator's persisted output as a YAML
	// document, written by the allocate step and read by later steps.
	KeyAllocations = "allocations"
	// KeyAssignments holds the persisted VM-to-device partition as a
	// YAML document.
	KeyAssignments = "assignments"
)

var defaults = map[string]string{
	KeyVMCount:         "2",
	KeyVMNamePrefix:    "guest",
	KeyBridgeName:      "br0",
	KeyImagePoolPath:   "/var/lib/virtforge/images",
	KeyDiskTotalGB:     "0",
	KeyPassthroughNICs: "",
	KeyLibvirtURI:      "qemu:///system",
	KeyAssumeYes:       "false",
	KeyLogFile:         "/var/log/virtforge.log",
	KeyAllocations:     "",
	KeyAssignments:     "",
}

// DeclaredKeys returns the declared key names in stable order.
func DeclaredKeys() []string {
	return []string{
		KeyVMCount, KeyVMNamePrefix, KeyBridgeName, KeyImagePoolPath,
		KeyDiskTotalGB, KeyPassthroughNICs, KeyLibvirtURI, KeyAssumeYes,
		KeyLogFile, KeyAllocations, KeyAssignments,
	}
}

// IsDeclared reports whether key is a known configuration key.
func IsDeclared(key string) bool {
	_, ok := defaults[key]
	return ok
}

// DefaultFor returns the documented default for a declared key.
func DefaultFor(key string) string {
	return defaults[key]
}

// Config is the loaded configuration store. Mutations write through to
// disk immediately; the in-memory map is never the only copy.
type Config struct {
	path   string
	values map[string]string
}

// Load reads the store at path. A missing file is not an error: every key
// reads as its default until first written. Unknown keys in the file are
// ignored, not errors, so older installers can read newer stores.
func Load(path string) (*Config, error) {
	c := &Config{path: path, values: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var onDisk map[string]string
	if err := yaml.Unmarshal(raw, &onDisk); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	for k, v := range onDisk {
		if IsDeclared(k) {
			c.values[k] = v
		}
	}
	return c, nil
}

// Path returns the backing file path.
func (c *Config) Path() string { return c.path }

// String returns the value for a declared key, falling back to its default.
func (c *Config) String(key string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return defaults[key]
}

// Int returns the key's value parsed as an integer. A malformed persisted
// value falls back to the default rather than failing a read.
func (c *Config) Int(key string) int {
	if n, err := strconv.Atoi(c.String(key)); err == nil {
		return n
	}
	n, _ := strconv.Atoi(defaults[key])
	return n
}

// Bool returns the key's value parsed as a boolean.
func (c *Config) Bool(key string) bool {
	if b, err := strconv.ParseBool(c.String(key)); err == nil {
		return b
	}
	b, _ := strconv.ParseBool(defaults[key])
	return b
}

// Set stores a value for a declared key and persists the whole store.
// YAML serialization quotes reserved characters, so any value that was
// set reads back identically.
func (c *Config) Set(key, value string) error {
	if !IsDeclared(key) {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	c.values[key] = value
	return c.persist()
}

// persist rewrites the full backing file.
func (c *Config) persist() error {
	out, err := yaml.Marshal(c.values)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(c.path, out, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", c.path, err)
	}
	return nil
}
