package virsh

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/virtforge/virtforge/internal/pci"
	"github.com/virtforge/virtforge/internal/util/retry"
)

// Client drives libvirt through the virsh binary. Each call is one virsh
// invocation; transient connection failures are retried with backoff.
type Client struct {
	// Binary is the virsh executable, normally just "virsh".
	Binary string
	// URI is the libvirt connection URI, e.g. "qemu:///system".
	URI string

	// run executes a command with optional stdin and returns its combined
	// output. Swapped out in tests.
	run func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// NewClient returns a Manager backed by the local virsh binary.
func NewClient(uri string) *Client {
	return &Client{
		Binary: "virsh",
		URI:    uri,
		run:    runCommand,
	}
}

func (c *Client) virsh(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	full := append([]string{"--connect", c.URI}, args...)

	var out []byte
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		out, err = c.run(ctx, stdin, c.Binary, full...)
		if err != nil && !isTransient(out) {
			return retry.Fatal(err)
		}
		return err
	}, retry.WithMaxRetries(2))
	if err != nil {
		return nil, fmt.Errorf("virsh %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// isTransient matches the libvirt errors worth retrying: daemon not yet up
// or a dropped connection. Everything else fails fast.
func isTransient(out []byte) bool {
	s := string(out)
	return strings.Contains(s, "failed to connect to the hypervisor") ||
		strings.Contains(s, "end of file while reading data")
}

// DomainExists implements Manager.
func (c *Client) DomainExists(ctx context.Context, name string) (bool, error) {
	out, err := c.virsh(ctx, nil, "list", "--all", "--name")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// State implements Manager.
func (c *Client) State(ctx context.Context, name string) (DomainState, error) {
	exists, err := c.DomainExists(ctx, name)
	if err != nil {
		return "", err
	}
	if !exists {
		return StateNoDomain, nil
	}
	out, err := c.virsh(ctx, nil, "domstate", name)
	if err != nil {
		return "", err
	}
	return DomainState(strings.TrimSpace(string(out))), nil
}

// Define implements Manager. virsh only defines from a file, so the
// document is staged through a temp file.
func (c *Client) Define(ctx context.Context, domainXML []byte) error {
	f, err := os.CreateTemp("", "virtforge-domain-*.xml")
	if err != nil {
		return fmt.Errorf("stage domain xml: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(domainXML); err != nil {
		f.Close()
		return fmt.Errorf("stage domain xml: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("stage domain xml: %w", err)
	}

	_, err = c.virsh(ctx, nil, "define", f.Name())
	return err
}

// Undefine implements Manager.
func (c *Client) Undefine(ctx context.Context, name string) error {
	_, err := c.virsh(ctx, nil, "undefine", name, "--nvram")
	return err
}

// Start implements Manager.
func (c *Client) Start(ctx context.Context, name string) error {
	_, err := c.virsh(ctx, nil, "start", name)
	return err
}

// Shutdown implements Manager.
func (c *Client) Shutdown(ctx context.Context, name string) error {
	_, err := c.virsh(ctx, nil, "shutdown", name)
	return err
}

// ForceStop implements Manager.
func (c *Client) ForceStop(ctx context.Context, name string) error {
	_, err := c.virsh(ctx, nil, "destroy", name)
	return err
}

// AttachedHostdevs implements Manager. The inactive definition is the one
// that matters: attachments are persistent and apply on next boot.
func (c *Client) AttachedHostdevs(ctx context.Context, name string) ([]pci.Address, error) {
	out, err := c.virsh(ctx, nil, "dumpxml", name, "--inactive")
	if err != nil {
		return nil, err
	}
	return hostdevsFromDump(out)
}

// AttachHostdev implements Manager.
func (c *Client) AttachHostdev(ctx context.Context, name string, addr pci.Address) error {
	doc, err := MarshalHostdev(HostdevFor(addr))
	if err != nil {
		return err
	}
	_, err = c.virsh(ctx, doc, "attach-device", name, "/dev/stdin", "--config")
	return err
}

// DetachHostdev implements Manager.
func (c *Client) DetachHostdev(ctx context.Context, name string, addr pci.Address) error {
	doc, err := MarshalHostdev(HostdevFor(addr))
	if err != nil {
		return err
	}
	_, err = c.virsh(ctx, doc, "detach-device", name, "/dev/stdin", "--config")
	return err
}

// PinVCPU implements Manager.
func (c *Client) PinVCPU(ctx context.Context, name string, vcpu int, cpuset []int) error {
	_, err := c.virsh(ctx, nil, "vcpupin", name, strconv.Itoa(vcpu), cpuList(cpuset), "--config")
	return err
}

// PinEmulator implements Manager.
func (c *Client) PinEmulator(ctx context.Context, name string, cpuset []int) error {
	_, err := c.virsh(ctx, nil, "emulatorpin", name, cpuList(cpuset), "--config")
	return err
}

// SetNUMAPolicy implements Manager.
func (c *Client) SetNUMAPolicy(ctx context.Context, name string, node int) error {
	_, err := c.virsh(ctx, nil, "numatune", name, "--nodeset", strconv.Itoa(node), "--mode", "strict", "--config")
	return err
}

// cpuList renders a cpuset as the comma-separated id list virsh expects.
func cpuList(cpuset []int) string {
	parts := make([]string, len(cpuset))
	for i, id := range cpuset {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := commandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}
