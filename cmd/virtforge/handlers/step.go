package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/virtforge/virtforge/internal/provisioning"
	"github.com/virtforge/virtforge/internal/ui"
)

// Step runs one named step regardless of the resume point. Useful for
// re-running a single step after fixing its inputs. The argument may be
// a step id or a step name.
func Step(ctx context.Context, opts Options, ref string) error {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	return runOne(rt, resolveStep(rt, ref))
}

// resolveStep maps a step name to its id; ids pass through unchanged.
func resolveStep(rt *runtime, ref string) string {
	if _, ok := rt.orch.Registry().IndexOf(ref); ok {
		return ref
	}
	for _, def := range rt.orch.Registry().Definitions() {
		if strings.EqualFold(def.Name, ref) {
			return def.ID
		}
	}
	return ref
}

func runOne(rt *runtime, id string) error {
	outcome, err := rt.orch.RunByID(rt.pctx, id)
	switch outcome {
	case provisioning.OutcomeRebootRequested:
		fmt.Fprint(out, ui.RenderRebootNotice(id))
		return nil
	case provisioning.OutcomeDeclined:
		fmt.Fprintln(out, "step declined")
		return nil
	case provisioning.OutcomeSkipped:
		fmt.Fprintf(out, "step %s is not applicable on this host\n", id)
		return nil
	default:
		return err
	}
}
