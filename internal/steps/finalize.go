package steps

import (
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Finalize is the closing validation pass: it re-checks every earlier
// step's postcondition so a completed install is known-good end to end.
// It never mutates; failures point the operator at the step to re-run.
type Finalize struct{}

// finalizePredecessors are re-checked in pipeline order. Kernel and
// network checks are included even though their steps may have been
// skipped as not applicable; their postconditions must hold either way.
var finalizePredecessors = []struct {
	id      string
	handler provisioning.Step
}{
	{PreflightID, &Preflight{}},
	{PackagesID, &Packages{}},
	{KernelID, &Kernel{}},
	{NetworkID, &Network{}},
	{StorageID, &Storage{}},
	{AllocateID, &Allocate{}},
	{DeployID, &Deploy{}},
	{PassthroughID, &Passthrough{}},
	{PinningID, &Pinning{}},
}

// Run implements provisioning.Step.
func (s *Finalize) Run(ctx *provisioning.Context) error {
	if err := s.Check(ctx); err != nil {
		return err
	}
	ctx.Observer.Printf("all %d steps verified, host provisioning complete", len(finalizePredecessors)+1)
	return nil
}

// Check implements provisioning.Step.
func (s *Finalize) Check(ctx *provisioning.Context) error {
	for _, pred := range finalizePredecessors {
		if err := pred.handler.Check(ctx); err != nil {
			ctx.Observer.Event(provisioning.Event{
				Type:    provisioning.EventValidationWarning,
				StepID:  pred.id,
				Message: err.Error(),
			})
			return err
		}
	}
	return nil
}
