package ui

import (
	"fmt"
	"strings"

	"github.com/virtforge/virtforge/internal/provisioning"
)

// RenderPlan shows the full pipeline with the resume point marked.
func RenderPlan(defs []provisioning.StepDefinition, resumeIndex int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Provisioning plan"))
	b.WriteString("\n")

	for i, def := range defs {
		var mark, line string
		switch {
		case i < resumeIndex:
			mark = okStyle.Render(doneMark)
			line = dimStyle.Render(fmt.Sprintf("%s  %s", def.ID, def.Name))
		case i == resumeIndex:
			mark = warningStyle.Render(nextMark)
			line = titleStyle.Render(fmt.Sprintf("%s  %s", def.ID, def.Name))
		default:
			mark = dimStyle.Render(pending)
			line = fmt.Sprintf("%s  %s", def.ID, def.Name)
		}
		fmt.Fprintf(&b, "%s %s\n", mark, line)
	}

	if resumeIndex >= len(defs) {
		b.WriteString(okStyle.Render("nothing left to do") + "\n")
	}
	return b.String()
}

// RenderValidation shows the read-only check pass as a table.
func RenderValidation(results []provisioning.CheckResult) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Validation"))
	b.WriteString("\n")

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Fprintf(&b, "%s %s  %s\n", failedStyle.Render(crossMark), r.ID,
				failedStyle.Render(r.Err.Error()))
			continue
		}
		fmt.Fprintf(&b, "%s %s  %s\n", okStyle.Render(checkMark), r.ID, dimStyle.Render(r.Name))
	}

	b.WriteString("\n")
	if failures == 0 {
		b.WriteString(okStyle.Render(fmt.Sprintf("all %d checks passed", len(results))))
	} else {
		b.WriteString(failedStyle.Render(fmt.Sprintf("%d of %d checks failed", failures, len(results))))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderRebootNotice tells the operator what to do after a reboot-trigger
// step. State is already persisted at this point; the next invocation
// resumes past the step.
func RenderRebootNotice(stepID string) string {
	var b strings.Builder
	b.WriteString(warningStyle.Render("Host restart required") + "\n")
	fmt.Fprintf(&b, "Step %s changed host configuration that only takes effect after a reboot.\n", stepID)
	b.WriteString("Progress is saved. Reboot, then run " + titleStyle.Render("virtforge apply") + " to continue.\n")
	return b.String()
}
