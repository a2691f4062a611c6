package scada

import "sync"

// ForcedAction pins one agent's actuator to a fixed action regardless of
// rule evaluation.
type ForcedAction struct {
	AgentID string `json:"agent_id"`
	Action  string `json:"action"`
}

// OverridePolicy decides, purely from simulation time, which agents are
// forced and to what. The coordinator rebuilds its active-override set
// from the policy on every request, so actions expire the moment the
// policy stops returning them.
type OverridePolicy interface {
	Evaluate(time float64) []ForcedAction
}

// WindowPolicy forces a single agent inside an open time interval,
// strictly exclusive at both bounds. It reproduces the demonstration
// override of the reference scenario (force one pump OFF between
// 10000s and 15000s) as configuration instead of hard-coded behavior.
type WindowPolicy struct {
	AgentID string  `yaml:"agent_id"`
	Action  string  `yaml:"action"`
	After   float64 `yaml:"after"`
	Before  float64 `yaml:"before"`
}

// Evaluate returns the forced action iff After < time < Before.
func (p WindowPolicy) Evaluate(time float64) []ForcedAction {
	if p.AgentID == "" || p.Action == "" {
		return nil
	}
	if time > p.After && time < p.Before {
		return []ForcedAction{{AgentID: p.AgentID, Action: p.Action}}
	}
	return nil
}

// ManualPolicy holds operator-issued overrides, time-independent until
// cleared. Safe for concurrent use by the supervisory API.
type ManualPolicy struct {
	mu      sync.RWMutex
	actions map[string]string
}

// NewManualPolicy constructs an empty manual policy.
func NewManualPolicy() *ManualPolicy {
	return &ManualPolicy{actions: make(map[string]string)}
}

// Set forces an agent to the given action until cleared.
func (p *ManualPolicy) Set(agentID, action string) {
	p.mu.Lock()
	p.actions[agentID] = action
	p.mu.Unlock()
}

// Clear removes the override for an agent.
func (p *ManualPolicy) Clear(agentID string) {
	p.mu.Lock()
	delete(p.actions, agentID)
	p.mu.Unlock()
}

// Evaluate returns all current manual overrides.
func (p *ManualPolicy) Evaluate(_ float64) []ForcedAction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ForcedAction, 0, len(p.actions))
	for agentID, action := range p.actions {
		out = append(out, ForcedAction{AgentID: agentID, Action: action})
	}
	return out
}

// PolicyChain concatenates several policies; later policies win on
// conflicting agents.
type PolicyChain []OverridePolicy

// Evaluate merges the forced actions of every chained policy.
func (c PolicyChain) Evaluate(time float64) []ForcedAction {
	var out []ForcedAction
	for _, policy := range c {
		if policy == nil {
			continue
		}
		out = append(out, policy.Evaluate(time)...)
	}
	return out
}
