package scada

import "waterscada/internal/controls"

// arbitrate selects the winning action among the rules whose condition
// holds for the given level. Highest Priority wins; ties go to the rule
// with the largest RuleIndex, i.e. the one latest in the document. The
// order is total, so repeated evaluation of the same inputs is stable.
// Returns false when no rule fires.
func arbitrate(rules []controls.ControlRule, level float64) (controls.Action, bool) {
	var winner controls.ControlRule
	found := false
	for _, rule := range rules {
		if !rule.Fires(level) {
			continue
		}
		if !found || beats(rule, winner) {
			winner = rule
			found = true
		}
	}
	if !found {
		return "", false
	}
	return winner.Action, true
}

func beats(candidate, incumbent controls.ControlRule) bool {
	if candidate.Priority != incumbent.Priority {
		return candidate.Priority > incumbent.Priority
	}
	return candidate.RuleIndex > incumbent.RuleIndex
}
