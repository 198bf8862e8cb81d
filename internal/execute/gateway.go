// Package execute provides the gateway every mutating action is issued
// through. The gateway either performs the action or, in dry-run mode,
// records what would have been done and reports synthetic success. Callers
// get the same contract in both modes, so nothing above the gateway ever
// branches on the mode.
package execute

import "sync"

// Mode selects whether the gateway performs or simulates actions.
type Mode int

const (
	// Execute performs actions for real.
	Execute Mode = iota
	// Simulate records intents and never touches a collaborator.
	Simulate
)

func (m Mode) String() string {
	if m == Simulate {
		return "simulate"
	}
	return "execute"
}

// Notifier receives a human-readable description of each action as it is
// performed or simulated. The provisioning observer implements this.
type Notifier func(intent string, simulated bool)

// Gateway issues mutating actions on behalf of steps.
type Gateway struct {
	mode   Mode
	notify Notifier

	mu        sync.Mutex
	simulated []string
}

// NewGateway returns a gateway in the given mode. notify may be nil.
func NewGateway(mode Mode, notify Notifier) *Gateway {
	return &Gateway{mode: mode, notify: notify}
}

// Mode returns the gateway's configured mode.
func (g *Gateway) Mode() Mode {
	return g.mode
}

// DryRun reports whether the gateway is simulating.
func (g *Gateway) DryRun() bool {
	return g.mode == Simulate
}

// Do performs the action described by intent, or records it in dry-run
// mode. The returned error is the action's own error in execute mode and
// always nil in simulate mode.
func (g *Gateway) Do(intent string, action func() error) error {
	if g.mode == Simulate {
		g.mu.Lock()
		g.simulated = append(g.simulated, intent)
		g.mu.Unlock()
		if g.notify != nil {
			g.notify(intent, true)
		}
		return nil
	}
	if g.notify != nil {
		g.notify(intent, false)
	}
	return action()
}

// Simulated returns the intents recorded so far in dry-run mode, in order.
func (g *Gateway) Simulated() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.simulated))
	copy(out, g.simulated)
	return out
}
