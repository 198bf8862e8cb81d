// Package pkgmgr is the package manager boundary. Installation is
// idempotent at the collaborator level: asking for an already satisfied
// package is a no-op, so steps can be retried freely.
package pkgmgr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/virtforge/virtforge/internal/util/retry"
)

// Installer installs and upgrades host packages.
type Installer interface {
	// Install ensures the named packages are present.
	Install(ctx context.Context, packages ...string) error

	// Upgrade brings the named packages to their latest available version.
	Upgrade(ctx context.Context, packages ...string) error
}

// DNF is an Installer backed by the dnf binary.
type DNF struct {
	// Binary is the dnf executable, normally just "dnf".
	Binary string

	// run executes a command and returns combined output. Swapped in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewDNF returns an Installer using the system dnf.
func NewDNF() *DNF {
	return &DNF{
		Binary: "dnf",
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Install implements Installer. dnf install is already a no-op for
// satisfied packages, which gives the idempotency the pipeline relies on.
func (d *DNF) Install(ctx context.Context, packages ...string) error {
	return d.dnf(ctx, append([]string{"install", "-y"}, packages...)...)
}

// Upgrade implements Installer.
func (d *DNF) Upgrade(ctx context.Context, packages ...string) error {
	return d.dnf(ctx, append([]string{"upgrade", "-y"}, packages...)...)
}

func (d *DNF) dnf(ctx context.Context, args ...string) error {
	var out []byte
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		out, err = d.run(ctx, d.Binary, args...)
		if err != nil && !isTransient(out) {
			return retry.Fatal(err)
		}
		return err
	}, retry.WithMaxRetries(2))
	if err != nil {
		return fmt.Errorf("dnf %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// isTransient matches repository/network failures worth a second attempt.
func isTransient(out []byte) bool {
	s := string(out)
	return strings.Contains(s, "Curl error") ||
		strings.Contains(s, "Failed to download metadata") ||
		strings.Contains(s, "Temporary failure in name resolution")
}
