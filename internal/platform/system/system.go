// Package system is the host mutation boundary for everything that is not
// the hypervisor or the package manager: kernel arguments, bridge
// configuration, directory layout. Steps describe the command; this
// package runs it.
package system

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes privileged host commands.
type Runner interface {
	// Run executes a command, discarding output on success.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// Exec is the real Runner.
type Exec struct{}

// NewExec returns a Runner backed by os/exec.
func NewExec() *Exec { return &Exec{} }

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Output implements Runner.
func (e *Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}
