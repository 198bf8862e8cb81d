// Package provisioning drives the installation pipeline: an ordered,
// immutable registry of steps, a resumable orchestrator around it, and the
// reboot coordinator that decides when a completed step requires a host
// restart.
//
// The central property of the whole design: a step failure is recoverable
// and retryable, while a reboot is a deliberate, state-safe termination.
// Only a fully successful step ever advances persisted state, and a reboot
// is surfaced strictly after that state write has returned.
package provisioning

import (
	"context"
	"fmt"
)

// Step is the strategy a registry entry dispatches to.
type Step interface {
	// Run performs the step's mutations, all of them through the
	// context's gateway. Returning ErrNotApplicable (possibly wrapped)
	// reports success with zero mutation.
	Run(ctx *Context) error

	// Check verifies the step's postcondition read-only. It backs the
	// operator's validation pass and must not mutate anything.
	Check(ctx *Context) error
}

// StepDefinition binds a step id and display name to its handler. The set
// of definitions is fixed for a program run; ids are unique and totally
// ordered by registry position.
type StepDefinition struct {
	ID      string
	Name    string
	Handler Step
}

// Registry is the ordered, immutable step table.
type Registry struct {
	defs []StepDefinition
	byID map[string]int
}

// NewRegistry builds a registry, rejecting duplicate ids.
func NewRegistry(defs ...StepDefinition) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(defs))}
	for i, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("step %d has an empty id", i)
		}
		if _, dup := r.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", def.ID)
		}
		r.byID[def.ID] = i
		r.defs = append(r.defs, def)
	}
	return r, nil
}

// Len returns the number of registered steps.
func (r *Registry) Len() int { return len(r.defs) }

// Definition returns the step at position i.
func (r *Registry) Definition(i int) StepDefinition { return r.defs[i] }

// Definitions returns the ordered step table.
func (r *Registry) Definitions() []StepDefinition {
	out := make([]StepDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// IndexOf returns the position of a step id.
func (r *Registry) IndexOf(id string) (int, bool) {
	i, ok := r.byID[id]
	return i, ok
}

// Confirmer presents the confirmation gate before a mutating step runs.
type Confirmer interface {
	// Confirm asks the operator to approve the step. false with a nil
	// error is a decline, which is not an error.
	Confirm(ctx context.Context, stepName, detail string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, stepName, detail string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, stepName, detail string) (bool, error) {
	return f(ctx, stepName, detail)
}
