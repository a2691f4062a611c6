// Package runtimecfg synthesizes the runtime agent roster: minimal
// user-supplied PLC entries merged with roles, element types and control
// logic inferred from the network description.
package runtimecfg

import (
	"waterscada/internal/controls"
	"waterscada/internal/waternet"
)

// Role distinguishes reporting agents from command-receiving agents.
type Role string

const (
	RoleSensor   Role = "sensor"
	RoleActuator Role = "actuator"
)

// LogicMode discriminates the Logic variant carried by an agent.
type LogicMode string

const (
	// ModeRuleList drives an actuator from a prioritized rule group.
	ModeRuleList LogicMode = "rule_list"
	// ModeReportLevel makes a sensor report one node's level.
	ModeReportLevel LogicMode = "report_level"
)

// Logic is the tagged control-logic variant attached to an agent.
// ModeRuleList carries Rules plus the default conditioning node;
// ModeReportLevel carries only NodeID.
type Logic struct {
	Mode   LogicMode              `json:"mode" yaml:"mode"`
	NodeID string                 `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	Rules  []controls.ControlRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// AgentConfig is one fully resolved PLC agent. Built once at startup and
// read-only afterwards.
type AgentConfig struct {
	ID          string               `json:"id" yaml:"id" validate:"required"`
	ElementID   string               `json:"element_id" yaml:"element_id" validate:"required"`
	Address     string               `json:"ip" yaml:"ip" validate:"required"`
	Role        Role                 `json:"role" yaml:"role" validate:"oneof=sensor actuator"`
	ElementType waternet.ElementType `json:"type" yaml:"type"`
	Logic       Logic                `json:"logic" yaml:"logic"`
}

// RuntimeConfig is the complete configuration for one simulation run.
// Scada settings from the user roster are preserved verbatim.
type RuntimeConfig struct {
	Scada  map[string]any `json:"scada" yaml:"scada"`
	Agents []AgentConfig  `json:"plcs" yaml:"plcs"`
}

// AgentByID returns the agent with the given id, or nil.
func (c *RuntimeConfig) AgentByID(id string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i]
		}
	}
	return nil
}

// Actuators returns the actuator agents in roster order.
func (c *RuntimeConfig) Actuators() []AgentConfig {
	var out []AgentConfig
	for _, agent := range c.Agents {
		if agent.Role == RoleActuator {
			out = append(out, agent)
		}
	}
	return out
}
