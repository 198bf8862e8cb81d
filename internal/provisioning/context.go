package provisioning

import (
	"context"
	"time"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/execute"
	"github.com/virtforge/virtforge/internal/platform/pkgmgr"
	"github.com/virtforge/virtforge/internal/platform/probe"
	"github.com/virtforge/virtforge/internal/platform/system"
	"github.com/virtforge/virtforge/internal/platform/virsh"
)

// StateRecorder is the progress marker consumed by the orchestrator.
// config.StateStore implements it; tests substitute a double to prove the
// persistence-before-reboot ordering.
type StateRecorder interface {
	Load() config.InstallState
	MarkCompleted(stepID string, now time.Time) error
}

// Context wraps every dependency a step handler may need. The
// configuration store is passed here explicitly rather than living in a
// package-level singleton; it is the only place persistence happens.
type Context struct {
	context.Context

	Config  *config.Config
	State   StateRecorder
	Gateway *execute.Gateway

	Hypervisor virsh.Manager
	Packages   pkgmgr.Installer
	Probe      probe.Prober
	System     system.Runner

	Observer Observer
	Confirm  Confirmer
}

// NewContext assembles a provisioning context.
func NewContext(
	ctx context.Context,
	cfg *config.Config,
	state StateRecorder,
	gateway *execute.Gateway,
	hypervisor virsh.Manager,
	packages pkgmgr.Installer,
	prober probe.Prober,
	runner system.Runner,
	observer Observer,
	confirm Confirmer,
) *Context {
	return &Context{
		Context:    ctx,
		Config:     cfg,
		State:      state,
		Gateway:    gateway,
		Hypervisor: hypervisor,
		Packages:   packages,
		Probe:      prober,
		System:     runner,
		Observer:   observer,
		Confirm:    confirm,
	}
}
