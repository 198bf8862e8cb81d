package handlers

import (
	"context"
	"fmt"

	"github.com/virtforge/virtforge/internal/provisioning"
	"github.com/virtforge/virtforge/internal/ui"
)

// Apply runs every remaining pipeline step from the resume point.
//
// The outcome decides what the operator sees next:
//   - completed: the pipeline is done (or was already done).
//   - reboot requested: progress is persisted; print the restart notice
//     and exit cleanly so the operator can reboot.
//   - declined: the operator stopped the run; not an error.
//   - failed: the error propagates and the step is retried next run.
func Apply(ctx context.Context, opts Options, interactive bool) error {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if interactive {
		return menuLoop(rt)
	}

	fmt.Fprint(out, ui.RenderPlan(rt.orch.Registry().Definitions(), rt.orch.ResumeIndex(rt.pctx)))
	return runRemaining(rt)
}

func runRemaining(rt *runtime) error {
	outcome, err := rt.orch.RunRemaining(rt.pctx)
	switch outcome {
	case provisioning.OutcomeRebootRequested:
		fmt.Fprint(out, ui.RenderRebootNotice(rt.state.Load().LastCompletedStepID))
		return nil
	case provisioning.OutcomeDeclined:
		fmt.Fprintln(out, "stopped at operator request; run apply again to continue")
		return nil
	default:
		return err
	}
}

// menuLoop drives the interactive session until the operator exits.
func menuLoop(rt *runtime) error {
	for {
		choice, err := promptMenu()
		if err != nil {
			return err
		}

		switch choice {
		case ui.MenuRunAll:
			if err := runRemaining(rt); err != nil {
				fmt.Fprintf(out, "run failed: %v\n", err)
			}
		case ui.MenuRunOne:
			id, err := promptStep(rt.orch.Registry().Definitions())
			if err != nil {
				return err
			}
			if err := runOne(rt, id); err != nil {
				fmt.Fprintf(out, "step failed: %v\n", err)
			}
		case ui.MenuValidate:
			fmt.Fprint(out, ui.RenderValidation(rt.orch.Check(rt.pctx)))
		case ui.MenuConfig:
			printConfig(rt.cfg)
		case ui.MenuLog:
			if err := printLog(rt.cfg); err != nil {
				fmt.Fprintf(out, "log unavailable: %v\n", err)
			}
		case ui.MenuExit:
			return nil
		}
	}
}
