package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/virtforge/virtforge/internal/provisioning"
)

// MenuChoice is one action the interactive menu can dispatch.
type MenuChoice string

const (
	MenuRunAll   MenuChoice = "run-all"
	MenuRunOne   MenuChoice = "run-one"
	MenuValidate MenuChoice = "validate"
	MenuConfig   MenuChoice = "config"
	MenuLog      MenuChoice = "log"
	MenuExit     MenuChoice = "exit"
)

// PromptMenu asks the operator what to do next.
func PromptMenu() (MenuChoice, error) {
	choice := MenuRunAll
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[MenuChoice]().
				Title("virtforge").
				Description("Unattended KVM host installer").
				Options(
					huh.NewOption("Run remaining steps", MenuRunAll),
					huh.NewOption("Run a single step", MenuRunOne),
					huh.NewOption("Validate host state", MenuValidate),
					huh.NewOption("Show configuration", MenuConfig),
					huh.NewOption("Show run log", MenuLog),
					huh.NewOption("Exit", MenuExit),
				).
				Value(&choice),
		),
	)
	if err := runForm(form); err != nil {
		return MenuExit, fmt.Errorf("menu prompt: %w", err)
	}
	return choice, nil
}

// PromptStep asks which single step to run.
func PromptStep(defs []provisioning.StepDefinition) (string, error) {
	if len(defs) == 0 {
		return "", fmt.Errorf("no steps registered")
	}

	options := make([]huh.Option[string], len(defs))
	for i, def := range defs {
		options[i] = huh.NewOption(fmt.Sprintf("%s  %s", def.ID, def.Name), def.ID)
	}

	id := defs[0].ID
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Step to run").
				Options(options...).
				Value(&id),
		),
	)
	if err := runForm(form); err != nil {
		return "", fmt.Errorf("step prompt: %w", err)
	}
	return id, nil
}
