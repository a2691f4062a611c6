// Package scada implements the central coordinator: it ingests sensor
// observations, arbitrates control rules per actuator, applies override
// policies and answers every PLC request with a reply message.
package scada

import (
	"errors"
	"log"
	"sync"

	"waterscada/internal/controls"
	"waterscada/internal/observability/metrics"
	"waterscada/internal/protocol"
	"waterscada/internal/runtimecfg"
	"waterscada/internal/waternet"
)

// Coordinator owns the process-lifetime control state: the sensor cache,
// the last issued command per element and the active override set. All
// mutation happens inside HandleRequest under one mutex, so concurrent
// agents see a serialized coordinator.
type Coordinator struct {
	cfg    *runtimecfg.RuntimeConfig
	policy OverridePolicy
	logger *log.Logger

	mu              sync.Mutex
	sensorCache     map[string]float64
	lastCommand     map[string]string
	activeOverrides map[string]string
}

// Option customizes the coordinator.
type Option func(*Coordinator)

// WithOverridePolicy injects the override policy evaluated on every
// request.
func WithOverridePolicy(policy OverridePolicy) Option {
	return func(c *Coordinator) {
		c.policy = policy
	}
}

// WithLogger assigns a logger for recovered protocol faults.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator constructs a coordinator over a built runtime config.
func NewCoordinator(cfg *runtimecfg.RuntimeConfig, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, errors.New("scada: nil runtime config")
	}
	c := &Coordinator{
		cfg:             cfg,
		sensorCache:     make(map[string]float64),
		lastCommand:     make(map[string]string),
		activeOverrides: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Reset clears all cached state; called once at simulation start.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensorCache = make(map[string]float64)
	c.lastCommand = make(map[string]string)
	c.activeOverrides = make(map[string]string)
}

// HandleRequest processes one observation request and returns the reply.
// Unknown agents and roles are recovered locally via the reply Error
// field; this method never fails.
func (c *Coordinator) HandleRequest(req protocol.ObservationRequest) protocol.CoordinatorReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The override set is a pure function of request time, independent of
	// request content, so expired windows clear on any traffic.
	c.refreshOverrides(req.Time)

	agent := c.cfg.AgentByID(req.PlcID)
	if agent == nil {
		if c.logger != nil {
			c.logger.Printf("scada: request from unknown plc %q", req.PlcID)
		}
		metrics.IncScadaRequest(req.Role, "unknown_plc")
		return protocol.CoordinatorReply{PlcID: req.PlcID, Responses: map[string]any{}, Error: protocol.ErrorUnknownPLC}
	}

	switch runtimecfg.Role(req.Role) {
	case runtimecfg.RoleSensor:
		c.ingestSensor(*agent, req.Observations)
		metrics.IncScadaRequest(req.Role, "ok")
		return protocol.CoordinatorReply{PlcID: req.PlcID, Responses: map[string]any{}}
	case runtimecfg.RoleActuator:
		responses := c.evaluateActuator(*agent, req.Observations)
		metrics.IncScadaRequest(req.Role, "ok")
		return protocol.CoordinatorReply{PlcID: req.PlcID, Responses: responses}
	default:
		if c.logger != nil {
			c.logger.Printf("scada: unknown role %q from plc %q", req.Role, req.PlcID)
		}
		metrics.IncScadaRequest(req.Role, "unknown_role")
		return protocol.CoordinatorReply{PlcID: req.PlcID, Responses: map[string]any{}, Error: protocol.ErrorUnknownRole}
	}
}

// Status is a point-in-time copy of the coordinator caches for the
// supervisory surface.
type Status struct {
	SensorLevels    map[string]float64 `json:"sensor_levels"`
	LastCommands    map[string]string  `json:"last_commands"`
	ActiveOverrides map[string]string  `json:"active_overrides"`
}

// Status returns a copy of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := Status{
		SensorLevels:    make(map[string]float64, len(c.sensorCache)),
		LastCommands:    make(map[string]string, len(c.lastCommand)),
		ActiveOverrides: make(map[string]string, len(c.activeOverrides)),
	}
	for k, v := range c.sensorCache {
		status.SensorLevels[k] = v
	}
	for k, v := range c.lastCommand {
		status.LastCommands[k] = v
	}
	for k, v := range c.activeOverrides {
		status.ActiveOverrides[k] = v
	}
	return status
}

func (c *Coordinator) refreshOverrides(time float64) {
	for agentID := range c.activeOverrides {
		delete(c.activeOverrides, agentID)
	}
	if c.policy != nil {
		for _, forced := range c.policy.Evaluate(time) {
			c.activeOverrides[forced.AgentID] = forced.Action
		}
	}
	metrics.SetOverridesActive(len(c.activeOverrides))
}

func (c *Coordinator) ingestSensor(agent runtimecfg.AgentConfig, observations map[string]any) {
	level, ok := observedLevel(observations)
	if !ok {
		return
	}
	c.sensorCache[agent.ElementID] = level
}

func (c *Coordinator) evaluateActuator(agent runtimecfg.AgentConfig, observations map[string]any) map[string]any {
	responses := make(map[string]any)

	command, ok := c.evaluateRules(agent, observations)
	if ok {
		c.lastCommand[agent.ElementID] = command
	}

	if action, overridden := c.activeOverrides[agent.ID]; overridden {
		responses[protocol.KeyOverrideAction] = action
		return responses
	}
	if ok {
		responses[commandKey(agent.ElementType)] = command
	}
	return responses
}

// evaluateRules runs the rule-list logic: resolve the current level from
// the observation or the sensor cache, collect every firing rule and
// arbitrate; without a level or a firing rule the element keeps its last
// known state (hysteresis).
func (c *Coordinator) evaluateRules(agent runtimecfg.AgentConfig, observations map[string]any) (string, bool) {
	logic := agent.Logic
	if logic.Mode != runtimecfg.ModeRuleList || len(logic.Rules) == 0 {
		return "", false
	}

	level, haveLevel := observedLevel(observations)
	if !haveLevel {
		if cached, ok := c.sensorCache[logic.NodeID]; ok {
			level = cached
			haveLevel = true
		}
	}
	if !haveLevel {
		metrics.IncRuleEvaluation("no_data")
		return c.fallback(agent, observations)
	}

	action, fired := arbitrate(logic.Rules, level)
	if !fired {
		metrics.IncRuleEvaluation("fallback")
		return c.fallback(agent, observations)
	}
	metrics.IncRuleEvaluation("fired")
	return commandForAction(agent.ElementType, action), true
}

// fallback returns the last issued command for the element, else its
// last observed physical status normalized to the canonical state pair.
func (c *Coordinator) fallback(agent runtimecfg.AgentConfig, observations map[string]any) (string, bool) {
	if command, ok := c.lastCommand[agent.ElementID]; ok {
		return command, true
	}
	raw, ok := observations[protocol.KeyCurrentStatus]
	if !ok {
		raw, ok = observations[protocol.KeyCurrentSetting]
	}
	if !ok {
		return "", false
	}
	return normalizeObserved(agent.ElementType, raw)
}

func observedLevel(observations map[string]any) (float64, bool) {
	if value, ok := observations[protocol.KeyLevel]; ok {
		if level, ok := protocol.Number(value); ok {
			return level, true
		}
	}
	if value, ok := observations[protocol.KeyLegacyLevel]; ok {
		if level, ok := protocol.Number(value); ok {
			return level, true
		}
	}
	return 0, false
}

func commandKey(elementType waternet.ElementType) string {
	if elementType == waternet.TypePump {
		return protocol.KeyPumpCommand
	}
	return protocol.KeyValveSetting
}

// commandForAction maps a rule action onto the element's command domain:
// pumps speak ON/OFF, valves and generic links OPEN/CLOSED.
func commandForAction(elementType waternet.ElementType, action controls.Action) string {
	if elementType == waternet.TypePump {
		if action == controls.ActionOpen {
			return "ON"
		}
		return "OFF"
	}
	return string(action)
}

// normalizeObserved maps an observed physical status onto the canonical
// command pair: ON/OPEN/1/true are active, OFF/CLOSED/0/false inactive.
func normalizeObserved(elementType waternet.ElementType, raw any) (string, bool) {
	active := false
	switch v := raw.(type) {
	case string:
		switch v {
		case "ON", "OPEN", "1", "true", "TRUE":
			active = true
		case "OFF", "CLOSED", "0", "false", "FALSE":
			active = false
		default:
			return "", false
		}
	case bool:
		active = v
	case float64:
		active = v != 0
	case int:
		active = v != 0
	default:
		return "", false
	}

	if elementType == waternet.TypePump {
		if active {
			return "ON", true
		}
		return "OFF", true
	}
	if active {
		return "OPEN", true
	}
	return "CLOSED", true
}
