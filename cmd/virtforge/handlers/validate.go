package handlers

import (
	"context"
	"fmt"

	"github.com/virtforge/virtforge/internal/ui"
)

// Validate runs every step's read-only postcondition check and renders
// the result. It never mutates the host; a failing check makes the
// command exit non-zero so scripts can gate on it.
func Validate(ctx context.Context, opts Options) error {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	results := rt.orch.Check(rt.pctx)
	fmt.Fprint(out, ui.RenderValidation(results))

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d checks failed", failures, len(results))
	}
	return nil
}
