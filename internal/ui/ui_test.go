package ui

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/virtforge/internal/provisioning"
)

func defs() []provisioning.StepDefinition {
	return []provisioning.StepDefinition{
		{ID: "00-preflight", Name: "Preflight hardware checks"},
		{ID: "01-packages", Name: "Install virtualization packages"},
		{ID: "02-kernel", Name: "Configure kernel parameters"},
	}
}

func TestRenderPlanMarksResumePoint(t *testing.T) {
	out := RenderPlan(defs(), 1)

	assert.Contains(t, out, "00-preflight")
	assert.Contains(t, out, doneMark)
	assert.Contains(t, out, nextMark)
	assert.Contains(t, out, pending)
}

func TestRenderPlanFinished(t *testing.T) {
	out := RenderPlan(defs(), 3)
	assert.Contains(t, out, "nothing left to do")
}

func TestRenderValidation(t *testing.T) {
	results := []provisioning.CheckResult{
		{ID: "00-preflight", Name: "Preflight hardware checks"},
		{ID: "01-packages", Name: "Install virtualization packages", Err: errors.New("virsh missing")},
	}

	out := RenderValidation(results)
	assert.Contains(t, out, checkMark)
	assert.Contains(t, out, crossMark)
	assert.Contains(t, out, "virsh missing")
	assert.Contains(t, out, "1 of 2 checks failed")
}

func TestRenderRebootNotice(t *testing.T) {
	out := RenderRebootNotice("02-kernel")
	assert.Contains(t, out, "02-kernel")
	assert.Contains(t, out, "virtforge apply")
}

func TestGateAssumeYesNeverPrompts(t *testing.T) {
	prev := runForm
	t.Cleanup(func() { runForm = prev })
	runForm = func(*huh.Form) error {
		t.Fatal("form must not run with assume yes")
		return nil
	}

	ok, err := NewGate(true).Confirm(context.Background(), "step", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGateAutoApprovesWithoutTerminal(t *testing.T) {
	if stdinIsTerminal() {
		t.Skip("requires a non-interactive stdin")
	}

	prev := runForm
	t.Cleanup(func() { runForm = prev })
	runForm = func(*huh.Form) error { return errors.New("form must not run") }

	// Unattended runs must not hang on a prompt.
	ok, err := NewGate(false).Confirm(context.Background(), "step", "")
	require.NoError(t, err)
	assert.True(t, ok)
}
