package steps

import (
	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Storage lays out the directory backing the VM image pool. Creating the
// directory is idempotent, so the step can be re-run freely.
type Storage struct{}

// Run implements provisioning.Step.
func (s *Storage) Run(ctx *provisioning.Context) error {
	pool := ctx.Config.String(config.KeyImagePoolPath)
	return ctx.Gateway.Do(
		"create image pool directory "+pool,
		func() error {
			return ctx.System.Run(ctx, "install", "-d", "-m", "0711", pool)
		},
	)
}

// Check implements provisioning.Step.
func (s *Storage) Check(ctx *provisioning.Context) error {
	pool := ctx.Config.String(config.KeyImagePoolPath)
	if err := ctx.System.Run(ctx, "test", "-d", pool); err != nil {
		return &provisioning.ValidationError{
			Prerequisite: "image pool directory",
			Detail:       pool + " does not exist",
		}
	}
	return nil
}
