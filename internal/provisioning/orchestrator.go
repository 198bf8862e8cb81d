package provisioning

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the result of one RunStep invocation.
type Outcome int

const (
	// OutcomeCompleted: the step succeeded and state was persisted.
	OutcomeCompleted Outcome = iota
	// OutcomeDeclined: the operator declined the gate; zero mutation,
	// state unchanged, the step is offered again next run.
	OutcomeDeclined
	// OutcomeSkipped: the step was not applicable; zero mutation,
	// state unchanged.
	OutcomeSkipped
	// OutcomeFailed: the step failed; state unchanged, retryable.
	OutcomeFailed
	// OutcomeRebootRequested: the step succeeded, state was persisted,
	// and the host must restart before the pipeline continues. The
	// caller decides whether and when to exit the process.
	OutcomeRebootRequested
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDeclined:
		return "declined"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeRebootRequested:
		return "reboot requested"
	}
	return "unknown"
}

// CheckResult is one step's entry in the read-only validation pass.
type CheckResult struct {
	ID   string
	Name string
	Err  error
}

// Orchestrator is the top-level pipeline driver.
type Orchestrator struct {
	registry *Registry
	reboot   *RebootCoordinator

	// now is a clock seam for tests.
	now func() time.Time
}

// NewOrchestrator builds an orchestrator over a registry and a reboot
// coordinator.
func NewOrchestrator(registry *Registry, reboot *RebootCoordinator) *Orchestrator {
	return &Orchestrator{registry: registry, reboot: reboot, now: time.Now}
}

// Registry returns the orchestrator's step table.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// ResumeIndex computes where the pipeline should continue: one past the
// last completed step, or 0 when nothing has completed yet. A persisted id
// that is no longer in the registry resets to 0 instead of crashing on
// stale state.
func (o *Orchestrator) ResumeIndex(ctx *Context) int {
	st := ctx.State.Load()
	if st.LastCompletedStepID == "" {
		return 0
	}
	i, ok := o.registry.IndexOf(st.LastCompletedStepID)
	if !ok {
		ctx.Observer.Printf("persisted step %q not in registry, restarting from the beginning", st.LastCompletedStepID)
		return 0
	}
	return i + 1
}

// Done reports whether the resume index is past the end of the registry.
func (o *Orchestrator) Done(ctx *Context) bool {
	return o.ResumeIndex(ctx) >= o.registry.Len()
}

// RunStep runs the step at index through the full lifecycle: confirmation
// gate, dispatch, state persistence, reboot decision. All step-level
// errors are converted here into an outcome plus a diagnostic; the caller
// never terminates because a step failed.
func (o *Orchestrator) RunStep(ctx *Context, index int) (Outcome, error) {
	if index < 0 || index >= o.registry.Len() {
		return OutcomeFailed, fmt.Errorf("step index %d out of range 0..%d", index, o.registry.Len()-1)
	}
	def := o.registry.Definition(index)
	obs := ctx.Observer.WithFields(map[string]string{"mode": ctx.Gateway.Mode().String()})

	ok, err := ctx.Confirm.Confirm(ctx, def.Name, fmt.Sprintf("step %s (%d/%d)", def.ID, index+1, o.registry.Len()))
	if err != nil {
		obs.Event(Event{Type: EventStepFailed, StepID: def.ID, Message: fmt.Sprintf("confirmation gate: %v", err)})
		return OutcomeFailed, fmt.Errorf("step %s confirmation: %w", def.ID, err)
	}
	if !ok {
		// A decline is not an error: nothing ran, nothing advances,
		// the same step is offered on the next invocation.
		obs.Event(Event{Type: EventStepDeclined, StepID: def.ID, Message: "operator declined, no changes made"})
		return OutcomeDeclined, nil
	}

	if def.Handler == nil {
		err := &MisconfigurationError{StepID: def.ID}
		obs.Event(Event{Type: EventStepFailed, StepID: def.ID, Message: err.Error()})
		return OutcomeFailed, err
	}

	obs.Event(Event{Type: EventStepStarted, StepID: def.ID, Message: def.Name})
	start := o.now()

	if err := def.Handler.Run(ctx); err != nil {
		if errors.Is(err, ErrNotApplicable) {
			obs.Event(Event{Type: EventStepSkipped, StepID: def.ID,
				Message: fmt.Sprintf("not applicable: %v", err)})
			return OutcomeSkipped, nil
		}
		obs.Event(Event{Type: EventStepFailed, StepID: def.ID, Message: err.Error()})
		return OutcomeFailed, fmt.Errorf("step %s failed: %w", def.ID, err)
	}

	// Persist progress before anything else. If this write fails the step
	// is reported failed even though its mutations happened: resuming will
	// retry it, and steps are built to tolerate that.
	if err := ctx.State.MarkCompleted(def.ID, o.now()); err != nil {
		obs.Event(Event{Type: EventStepFailed, StepID: def.ID,
			Message: fmt.Sprintf("state not persisted: %v", err)})
		return OutcomeFailed, fmt.Errorf("persist state after step %s: %w", def.ID, err)
	}

	obs.Event(Event{Type: EventStepCompleted, StepID: def.ID,
		Fields: map[string]string{"duration": o.now().Sub(start).Round(time.Millisecond).String()}})

	if o.reboot.Requires(def.ID) {
		if ctx.Gateway.DryRun() {
			obs.Printf("step %s would request a host reboot (dry-run, not rebooting)", def.ID)
			return OutcomeCompleted, nil
		}
		// State is durably written above; only now may the restart be
		// surfaced, because it will terminate this process.
		obs.Event(Event{Type: EventRebootRequested, StepID: def.ID})
		return OutcomeRebootRequested, nil
	}

	return OutcomeCompleted, nil
}

// RunByID runs one named step regardless of the resume point.
func (o *Orchestrator) RunByID(ctx *Context, id string) (Outcome, error) {
	i, ok := o.registry.IndexOf(id)
	if !ok {
		err := &MisconfigurationError{StepID: id}
		ctx.Observer.Event(Event{Type: EventStepFailed, StepID: id, Message: err.Error()})
		return OutcomeFailed, err
	}
	return o.RunStep(ctx, i)
}

// RunRemaining runs every step from the resume point. It stops early on a
// decline, a failure, or a reboot request and returns that outcome; the
// process itself keeps running either way.
func (o *Orchestrator) RunRemaining(ctx *Context) (Outcome, error) {
	for {
		index := o.ResumeIndex(ctx)
		if index >= o.registry.Len() {
			ctx.Observer.Printf("all %d steps complete", o.registry.Len())
			return OutcomeCompleted, nil
		}

		outcome, err := o.RunStep(ctx, index)
		switch outcome {
		case OutcomeCompleted:
			// next iteration recomputes the resume point
		case OutcomeSkipped:
			// A skipped step does not advance persisted state, so looping
			// would re-offer it forever. Mark it completed here: skipping
			// is a successful outcome for the pipeline even though the
			// step itself recorded no progress.
			if serr := ctx.State.MarkCompleted(o.registry.Definition(index).ID, o.now()); serr != nil {
				return OutcomeFailed, fmt.Errorf("persist state after skipped step: %w", serr)
			}
		default:
			return outcome, err
		}
	}
}

// Check runs every step's read-only postcondition check in order.
func (o *Orchestrator) Check(ctx *Context) []CheckResult {
	results := make([]CheckResult, 0, o.registry.Len())
	for _, def := range o.registry.Definitions() {
		res := CheckResult{ID: def.ID, Name: def.Name}
		if def.Handler == nil {
			res.Err = &MisconfigurationError{StepID: def.ID}
		} else {
			res.Err = def.Handler.Check(ctx)
		}
		results = append(results, res)
	}
	return results
}
