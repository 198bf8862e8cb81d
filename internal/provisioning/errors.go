package provisioning

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotApplicable is returned by a step that has nothing to do on this
// host in its current configuration. It is success with zero mutation;
// like an operator decline, it does not advance persisted state on its
// own, but the two are reported distinctly in the log.
var ErrNotApplicable = errors.New("step not applicable")

// ValidationError means a prerequisite for the step is missing: an earlier
// step's persisted output or a required configuration value. The message
// tells the operator exactly which prerequisite to satisfy.
type ValidationError struct {
	Prerequisite string
	Detail       string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("missing prerequisite: %s", e.Prerequisite)
	}
	return fmt.Sprintf("missing prerequisite: %s (%s)", e.Prerequisite, e.Detail)
}

// ExternalError wraps a failure from the package manager, hypervisor
// control plane or hardware probe.
type ExternalError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// ItemFailure is one failed item inside a best-effort batch.
type ItemFailure struct {
	Item string
	Err  error
}

// PartialFailure aggregates per-item failures from a best-effort pass,
// e.g. device attachments. Critical reports whether the step as a whole
// should count as failed.
type PartialFailure struct {
	Failures []ItemFailure
	Critical bool
}

func (e *PartialFailure) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Item, f.Err)
	}
	return fmt.Sprintf("%d of batch failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// MisconfigurationError means a step id was requested, or found in
// persisted state, that has no registered handler. The step in question is
// failed; the orchestrator itself keeps running.
type MisconfigurationError struct {
	StepID string
}

func (e *MisconfigurationError) Error() string {
	return fmt.Sprintf("no handler registered for step %q", e.StepID)
}
