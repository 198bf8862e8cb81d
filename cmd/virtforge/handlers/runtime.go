// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic and can be tested independently of the
// CLI framework: every external seam is a package-level factory variable
// tests can replace.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/execute"
	"github.com/virtforge/virtforge/internal/platform/pkgmgr"
	"github.com/virtforge/virtforge/internal/platform/probe"
	"github.com/virtforge/virtforge/internal/platform/system"
	"github.com/virtforge/virtforge/internal/platform/virsh"
	"github.com/virtforge/virtforge/internal/provisioning"
	"github.com/virtforge/virtforge/internal/steps"
	"github.com/virtforge/virtforge/internal/ui"
)

// DefaultConfigPath is where the installer keeps its configuration and,
// next to it, the persisted pipeline state.
const DefaultConfigPath = "/etc/virtforge/virtforge.yaml"

// stateFileName sits in the same directory as the config file.
const stateFileName = "state.yaml"

// Options carries the flags shared by every command.
type Options struct {
	ConfigPath string
	DryRun     bool
	AssumeYes  bool
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// out is where human-readable handler output goes.
	out io.Writer = os.Stdout

	// loadConfigFile loads the configuration store.
	loadConfigFile = config.Load

	// newStateStore opens the persisted pipeline state.
	newStateStore = config.NewStateStore

	// newHypervisor creates the libvirt control plane client.
	newHypervisor = func(uri string) virsh.Manager {
		return virsh.NewClient(uri)
	}

	// newInstaller creates the package manager client.
	newInstaller = func() pkgmgr.Installer { return pkgmgr.NewDNF() }

	// newProber creates the hardware probe.
	newProber = func() probe.Prober { return probe.NewSysfs() }

	// newRunner creates the privileged command runner.
	newRunner = func() system.Runner { return system.NewExec() }

	// openLog opens the append-only run log.
	openLog = func(path string) (io.WriteCloser, error) {
		return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	}

	// buildRegistry assembles the step table.
	buildRegistry = steps.BuildRegistry

	// newGate builds the per-step confirmation gate.
	newGate = ui.NewGate

	// promptMenu and promptStep drive the interactive menu.
	promptMenu = ui.PromptMenu
	promptStep = ui.PromptStep
)

// runtime bundles everything a handler needs for one invocation.
type runtime struct {
	cfg   *config.Config
	state *config.StateStore
	orch  *provisioning.Orchestrator
	pctx  *provisioning.Context

	closeLog func()
}

// newRuntime assembles the pipeline from configuration. The returned
// runtime must be closed.
func newRuntime(ctx context.Context, opts Options) (*runtime, error) {
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	state := newStateStore(filepath.Join(filepath.Dir(path), stateFileName))

	var observer provisioning.Observer
	closeLog := func() {}
	logFile, err := openLog(cfg.String(config.KeyLogFile))
	if err != nil {
		// A run log we cannot open must not stop provisioning.
		fmt.Fprintf(out, "run log unavailable: %v\n", err)
		observer = provisioning.NewConsoleObserver()
	} else {
		observer = provisioning.NewConsoleObserverWithLog(logFile)
		closeLog = func() { _ = logFile.Close() }
	}

	mode := execute.Execute
	if opts.DryRun {
		mode = execute.Simulate
	}
	gateway := execute.NewGateway(mode, func(intent string, simulated bool) {
		t := provisioning.EventActionExecuted
		if simulated {
			t = provisioning.EventActionSimulated
		}
		observer.Event(provisioning.Event{Type: t, Message: intent})
	})

	registry, err := buildRegistry()
	if err != nil {
		closeLog()
		return nil, err
	}

	assumeYes := opts.AssumeYes || cfg.Bool(config.KeyAssumeYes)
	pctx := provisioning.NewContext(ctx, cfg, state, gateway,
		newHypervisor(cfg.String(config.KeyLibvirtURI)),
		newInstaller(), newProber(), newRunner(),
		observer, newGate(assumeYes))

	return &runtime{
		cfg:      cfg,
		state:    state,
		orch:     provisioning.NewOrchestrator(registry, provisioning.NewRebootCoordinator(steps.RebootTriggers()...)),
		pctx:     pctx,
		closeLog: closeLog,
	}, nil
}

func (r *runtime) close() {
	r.closeLog()
}
