package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// InstallState is the only cross-run memory of pipeline progress.
type InstallState struct {
	LastCompletedStepID string `yaml:"last_completed_step,omitempty"`
	LastRun             string `yaml:"last_run,omitempty"`
}

// LastRunTime parses the recorded timestamp; the zero time if absent or
// unparseable.
func (s InstallState) LastRunTime() time.Time {
	t, err := time.Parse(time.RFC3339, s.LastRun)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StateStore persists InstallState. The file is rewritten whole on every
// save; a missing or corrupt file loads as the zero state so a damaged
// marker can never wedge the installer.
type StateStore struct {
	path string
}

// NewStateStore returns a store backed by the file at path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the backing file path.
func (s *StateStore) Path() string { return s.path }

// Load reads the persisted state. Absent or unreadable state is the zero
// state, never an error: the pipeline restarts from the beginning rather
// than refusing to run.
func (s *StateStore) Load() InstallState {
	var st InstallState
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return st
	}
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return InstallState{}
	}
	return st
}

// Save persists the state. Unlike Load, a failed save is an error the
// caller must see: a reboot must never be issued before this returns.
func (s *StateStore) Save(st InstallState) error {
	out, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, out, 0o600); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}
	return nil
}

// MarkCompleted records stepID as the last completed step, stamped now.
func (s *StateStore) MarkCompleted(stepID string, now time.Time) error {
	return s.Save(InstallState{
		LastCompletedStepID: stepID,
		LastRun:             now.UTC().Format(time.RFC3339),
	})
}
