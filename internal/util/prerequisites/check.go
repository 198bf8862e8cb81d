// Package prerequisites checks that the host tools the installer shells
// out to are actually present before a step depends on them.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool is a host binary a pipeline step requires.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string
}

// DefaultTools returns the binaries the pipeline cannot run without once
// the package step has completed.
func DefaultTools() []Tool {
	return []Tool{
		{Name: "virsh", Required: true, Description: "drives the libvirt control plane"},
		{Name: "qemu-img", Required: true, Description: "creates guest disk images"},
		{Name: "nmcli", Required: true, Description: "configures the host bridge"},
	}
}

// KernelTools returns the binaries the kernel parameter step needs.
func KernelTools() []Tool {
	return []Tool{
		{Name: "grubby", Required: true, Description: "edits kernel boot arguments"},
	}
}

// OptionalTools returns binaries that help debugging but are not required.
func OptionalTools() []Tool {
	return []Tool{
		{Name: "numactl", Required: false, Description: "inspect NUMA placement manually"},
		{Name: "lspci", Required: false, Description: "inspect PCI devices manually"},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error naming every missing required tool, nil if none.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.Description))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := exec.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = getToolVersion(tool.Name)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckDefault checks the default required tools.
func CheckDefault() *CheckResults {
	return Check(DefaultTools())
}

// CheckAll checks every tool, required and optional.
func CheckAll() *CheckResults {
	all := append(DefaultTools(), KernelTools()...)
	all = append(all, OptionalTools()...)
	return Check(all)
}

// getToolVersion attempts to get the version of a tool, best effort.
func getToolVersion(name string) string {
	versionFlags := []string{"--version", "version", "-v"}

	for _, flag := range versionFlags {
		// #nosec G204 - name comes from trusted Tool definitions, not user input
		cmd := exec.Command(name, flag)
		output, err := cmd.Output()
		if err == nil {
			lines := strings.Split(string(output), "\n")
			if len(lines) > 0 {
				return strings.TrimSpace(lines[0])
			}
		}
	}

	return ""
}
