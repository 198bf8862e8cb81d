package provisioning

// RebootCoordinator knows which steps require a host restart for their
// changes to take effect (kernel parameters, interface renaming).
//
// The coordinator only answers the question; the orchestrator asks it
// strictly after the just-completed step has been persisted, and the
// top-level driver, not the step, decides whether to actually exit.
type RebootCoordinator struct {
	triggers map[string]bool
}

// NewRebootCoordinator returns a coordinator for the given trigger steps.
func NewRebootCoordinator(stepIDs ...string) *RebootCoordinator {
	rc := &RebootCoordinator{triggers: make(map[string]bool, len(stepIDs))}
	for _, id := range stepIDs {
		rc.triggers[id] = true
	}
	return rc
}

// Requires reports whether completing stepID demands a host restart.
func (rc *RebootCoordinator) Requires(stepID string) bool {
	return rc.triggers[stepID]
}
