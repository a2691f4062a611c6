package runtimecfg

import (
	"fmt"

	"waterscada/internal/controls"
	"waterscada/internal/waternet"
)

const (
	defaultActuatorAddress = "10.0.0.250"
	sensorAddressPrefix    = "10.0.1."
	sensorAddressBase      = 10
)

// Build merges the minimal user roster with rules and element types
// inferred from the network description at inpPath. One actuator agent is
// produced per distinct link referenced by at least one rule; sensor
// agents are synthesized for every conditioning node not covered by an
// explicit roster sensor. Iteration order is the first-seen order of
// links and nodes in the rules, so synthesized addresses are
// reproducible.
func Build(roster Roster, inpPath string) (RuntimeConfig, error) {
	model, err := waternet.Load(inpPath)
	if err != nil {
		return RuntimeConfig{}, err
	}
	rules, err := controls.ParseControls(inpPath)
	if err != nil {
		return RuntimeConfig{}, err
	}

	userByElement := make(map[string]RosterEntry, len(roster.PLCs))
	for _, entry := range roster.PLCs {
		if _, dup := userByElement[entry.ElementID]; dup {
			return RuntimeConfig{}, fmt.Errorf("runtimecfg: duplicate roster entry for element %q", entry.ElementID)
		}
		userByElement[entry.ElementID] = entry
	}

	// Group rules by link, preserving first-seen order.
	var linkOrder []string
	groups := make(map[string][]controls.ControlRule)
	var nodeOrder []string
	seenNodes := make(map[string]struct{})
	for _, rule := range rules {
		if _, ok := groups[rule.LinkID]; !ok {
			linkOrder = append(linkOrder, rule.LinkID)
		}
		groups[rule.LinkID] = append(groups[rule.LinkID], rule)
		if _, ok := seenNodes[rule.NodeID]; !ok {
			seenNodes[rule.NodeID] = struct{}{}
			nodeOrder = append(nodeOrder, rule.NodeID)
		}
	}

	cfg := RuntimeConfig{Scada: roster.Scada}

	for _, linkID := range linkOrder {
		group := groups[linkID]
		entry, ok := userByElement[linkID]
		if !ok {
			entry = RosterEntry{
				ID:        "PLC_" + linkID,
				ElementID: linkID,
				Address:   defaultActuatorAddress,
			}
		}
		address := entry.Address
		if address == "" {
			address = defaultActuatorAddress
		}
		cfg.Agents = append(cfg.Agents, AgentConfig{
			ID:          entry.ID,
			ElementID:   entry.ElementID,
			Address:     address,
			Role:        RoleActuator,
			ElementType: model.LinkType(linkID),
			Logic: Logic{
				Mode:   ModeRuleList,
				NodeID: group[0].NodeID,
				Rules:  group,
			},
		})
	}

	// Explicit roster sensors keep their identity and suppress synthesis
	// for their node.
	coveredNodes := make(map[string]struct{})
	for _, entry := range roster.PLCs {
		if entry.Role != RoleSensor {
			continue
		}
		if _, dup := coveredNodes[entry.ElementID]; dup {
			continue
		}
		coveredNodes[entry.ElementID] = struct{}{}
		address := entry.Address
		if address == "" {
			address = fmt.Sprintf("%s%d", sensorAddressPrefix, len(cfg.Agents)+sensorAddressBase)
		}
		cfg.Agents = append(cfg.Agents, AgentConfig{
			ID:          entry.ID,
			ElementID:   entry.ElementID,
			Address:     address,
			Role:        RoleSensor,
			ElementType: model.NodeType(entry.ElementID),
			Logic:       Logic{Mode: ModeReportLevel, NodeID: entry.ElementID},
		})
	}

	for _, nodeID := range nodeOrder {
		if _, ok := coveredNodes[nodeID]; ok {
			continue
		}
		cfg.Agents = append(cfg.Agents, AgentConfig{
			ID:          "PLC_SENSOR_" + nodeID,
			ElementID:   nodeID,
			Address:     fmt.Sprintf("%s%d", sensorAddressPrefix, len(cfg.Agents)+sensorAddressBase),
			Role:        RoleSensor,
			ElementType: model.NodeType(nodeID),
			Logic:       Logic{Mode: ModeReportLevel, NodeID: nodeID},
		})
	}

	if err := verifyRoster(cfg); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

// verifyRoster enforces the roster invariants: actuator element ids are
// unique and every agent validates structurally.
func verifyRoster(cfg RuntimeConfig) error {
	actuators := make(map[string]string)
	for _, agent := range cfg.Agents {
		if err := validate.Struct(agent); err != nil {
			return fmt.Errorf("runtimecfg: invalid agent %q: %w", agent.ID, err)
		}
		if agent.Role != RoleActuator {
			continue
		}
		if prev, dup := actuators[agent.ElementID]; dup {
			return fmt.Errorf("runtimecfg: element %q claimed by both %q and %q", agent.ElementID, prev, agent.ID)
		}
		actuators[agent.ElementID] = agent.ID
	}
	return nil
}
