package virsh

import (
	"os/exec"
)

// commandContext is a seam for tests that must not spawn processes.
var commandContext = exec.CommandContext
