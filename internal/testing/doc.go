// Package testing provides shared test doubles for the installer's
// external collaborators. All doubles record the calls made against them
// in order, so tests can assert not just that a mutation happened but
// when it happened relative to state persistence — the property the
// reboot ordering guarantee depends on.
package testing
