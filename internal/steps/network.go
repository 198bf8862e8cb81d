package steps

import (
	"fmt"
	"strings"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/platform/probe"
	"github.com/virtforge/virtforge/internal/provisioning"
)

// Network creates the host bridge the guests' management interfaces join
// and enslaves one physical uplink to it. Re-addressing the uplink drops
// connectivity until the host restarts with the new profiles, so this
// step is registered as a reboot trigger.
type Network struct{}

// Run implements provisioning.Step.
func (s *Network) Run(ctx *provisioning.Context) error {
	bridge := ctx.Config.String(config.KeyBridgeName)

	nics, err := ctx.Probe.NetworkInterfaces(ctx)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "probe", Op: "network interfaces", Err: err}
	}
	if hasInterface(nics, bridge) {
		return provisioning.ErrNotApplicable
	}

	uplink, err := pickUplink(nics, passthroughNames(ctx.Config))
	if err != nil {
		return err
	}

	err = ctx.Gateway.Do(
		fmt.Sprintf("create bridge %s", bridge),
		func() error {
			return ctx.System.Run(ctx, "nmcli", "con", "add",
				"type", "bridge", "ifname", bridge, "con-name", bridge,
				"bridge.stp", "no")
		},
	)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "system", Op: "create bridge", Err: err}
	}

	err = ctx.Gateway.Do(
		fmt.Sprintf("enslave uplink %s to bridge %s", uplink, bridge),
		func() error {
			return ctx.System.Run(ctx, "nmcli", "con", "add",
				"type", "bridge-slave", "ifname", uplink, "master", bridge)
		},
	)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "system", Op: "enslave uplink", Err: err}
	}

	return ctx.Gateway.Do(
		fmt.Sprintf("activate bridge %s", bridge),
		func() error { return ctx.System.Run(ctx, "nmcli", "con", "up", bridge) },
	)
}

// Check implements provisioning.Step.
func (s *Network) Check(ctx *provisioning.Context) error {
	bridge := ctx.Config.String(config.KeyBridgeName)
	nics, err := ctx.Probe.NetworkInterfaces(ctx)
	if err != nil {
		return &provisioning.ExternalError{Collaborator: "probe", Op: "network interfaces", Err: err}
	}
	if !hasInterface(nics, bridge) {
		return &provisioning.ValidationError{
			Prerequisite: "host bridge " + bridge,
			Detail:       "interface not present",
		}
	}
	return nil
}

// pickUplink selects the first physical interface that is not reserved
// for passthrough. Discovery order makes the choice deterministic.
func pickUplink(nics []probe.NIC, reserved []string) (string, error) {
	for _, nic := range nics {
		if !nic.HasPCI {
			continue
		}
		if contains(reserved, nic.Name) {
			continue
		}
		return nic.Name, nil
	}
	return "", fmt.Errorf("no physical interface available as bridge uplink")
}

// passthroughNames parses the comma-separated passthrough interface list.
func passthroughNames(cfg *config.Config) []string {
	raw := cfg.String(config.KeyPassthroughNICs)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var names []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func hasInterface(nics []probe.NIC, name string) bool {
	for _, nic := range nics {
		if nic.Name == name {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
