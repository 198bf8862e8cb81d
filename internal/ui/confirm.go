// Package ui provides the operator-facing surfaces of the installer: the
// per-step confirmation gate, plan and validation rendering, and the
// interactive menu. Nothing in here mutates the host.
package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/virtforge/virtforge/internal/provisioning"
)

// runForm is a seam so tests never open a terminal form.
var runForm = func(form *huh.Form) error { return form.Run() }

// NewGate returns the confirmation gate presented before each mutating
// step. With assumeYes, or without a terminal to ask on, every step is
// approved; unattended runs must not hang on a prompt.
func NewGate(assumeYes bool) provisioning.Confirmer {
	return provisioning.ConfirmFunc(func(_ context.Context, stepName, detail string) (bool, error) {
		if assumeYes || !stdinIsTerminal() {
			return true, nil
		}

		approved := true
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Run step: %s?", stepName)).
					Description(detail).
					Affirmative("Run").
					Negative("Skip for now").
					Value(&approved),
			),
		)
		if err := runForm(form); err != nil {
			return false, fmt.Errorf("confirmation prompt: %w", err)
		}
		return approved, nil
	})
}

func stdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}
