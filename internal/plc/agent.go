// Package plc implements the per-element agent logic: build an
// observation request from the physical snapshot, retain the latest
// coordinator reply, derive an actuator effect from it. Each agent is
// synchronous within a step and owns only its own state, so distinct
// agents may build requests concurrently.
package plc

import (
	"strconv"

	"waterscada/internal/physical"
	"waterscada/internal/protocol"
	"waterscada/internal/runtimecfg"
	"waterscada/internal/waternet"
)

// Agent is one PLC bound to a single physical element.
type Agent struct {
	cfg       runtimecfg.AgentConfig
	lastReply protocol.CoordinatorReply
}

// NewAgent constructs an agent from its resolved configuration.
func NewAgent(cfg runtimecfg.AgentConfig) *Agent {
	return &Agent{cfg: cfg}
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.cfg.ID }

// ElementID returns the controlled element id.
func (a *Agent) ElementID() string { return a.cfg.ElementID }

// Role returns the agent role.
func (a *Agent) Role() runtimecfg.Role { return a.cfg.Role }

// ElementType returns the controlled element's type.
func (a *Agent) ElementType() waternet.ElementType { return a.cfg.ElementType }

// BuildRequest assembles a fresh observation request from the snapshot.
// Sensors report their node's level; actuators report the conditioning
// node's level (when their logic names one) plus the element's current
// physical status, copied verbatim without caching.
func (a *Agent) BuildRequest(snap physical.Snapshot) protocol.ObservationRequest {
	observations := make(map[string]any)

	switch a.cfg.Role {
	case runtimecfg.RoleSensor:
		if level, ok := nodeLevel(snap, a.cfg.Logic.NodeID); ok {
			observations[protocol.KeyLevel] = level
		}
	case runtimecfg.RoleActuator:
		if a.cfg.Logic.NodeID != "" {
			if level, ok := nodeLevel(snap, a.cfg.Logic.NodeID); ok {
				observations[protocol.KeyLevel] = level
			}
		}
		switch a.cfg.ElementType {
		case "pump":
			if status, ok := snap.Pumps[a.cfg.ElementID]; ok {
				observations[protocol.KeyCurrentStatus] = status
			}
		case "valve":
			if setting, ok := snap.Valves[a.cfg.ElementID]; ok {
				observations[protocol.KeyCurrentSetting] = setting
			}
		default:
			if status, ok := snap.Pumps[a.cfg.ElementID]; ok {
				observations[protocol.KeyCurrentStatus] = status
			} else if setting, ok := snap.Valves[a.cfg.ElementID]; ok {
				observations[protocol.KeyCurrentSetting] = setting
			}
		}
	}

	return protocol.ObservationRequest{
		PlcID:        a.cfg.ID,
		Role:         string(a.cfg.Role),
		Time:         snap.Time,
		Observations: observations,
	}
}

// UpdateFromReply retains the reply, overwriting any previous one.
func (a *Agent) UpdateFromReply(reply protocol.CoordinatorReply) {
	a.lastReply = reply
}

// LastReply returns the retained coordinator reply.
func (a *Agent) LastReply() protocol.CoordinatorReply {
	return a.lastReply
}

// ActuatorEffect derives the command map for this agent's element from
// the retained reply. An override_action response always wins over the
// role-specific command key; with neither present the map is empty and
// the caller keeps the prior physical state.
func (a *Agent) ActuatorEffect() map[string]string {
	if a.cfg.Role != runtimecfg.RoleActuator {
		return map[string]string{}
	}
	responses := a.lastReply.Responses
	if len(responses) == 0 {
		return map[string]string{}
	}

	if action, ok := responses[protocol.KeyOverrideAction]; ok {
		if cmd, ok := commandString(action); ok {
			return map[string]string{a.cfg.ElementID: cmd}
		}
	}

	key := protocol.KeyValveSetting
	if a.cfg.ElementType == "pump" {
		key = protocol.KeyPumpCommand
	}
	if value, ok := responses[key]; ok {
		if cmd, ok := commandString(value); ok {
			return map[string]string{a.cfg.ElementID: cmd}
		}
	}
	return map[string]string{}
}

// nodeLevel looks up a node's level, preferring tank levels and falling
// back to pressures for non-tank nodes.
func nodeLevel(snap physical.Snapshot, nodeID string) (float64, bool) {
	if nodeID == "" {
		return 0, false
	}
	if level, ok := snap.Tanks[nodeID]; ok {
		return level, true
	}
	if pressure, ok := snap.Pressures[nodeID]; ok {
		return pressure, true
	}
	return 0, false
}

// commandString coerces a reply value into a command string. Numeric
// valve settings from legacy replies are formatted compactly.
func commandString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		if v {
			return "ON", true
		}
		return "OFF", true
	default:
		return "", false
	}
}
