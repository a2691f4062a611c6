package controls

// Comparator compares a tank level against a rule threshold.
type Comparator string

// Action is the state a rule forces on its link when it fires.
type Action string

const (
	ComparatorBelow Comparator = "BELOW"
	ComparatorAbove Comparator = "ABOVE"

	ActionOpen   Action = "OPEN"
	ActionClosed Action = "CLOSED"
)

// ControlRule is one parsed [CONTROLS] line. Higher Priority wins when
// several rules on the same link fire; ties fall back to the later rule
// in the document (larger RuleIndex). Immutable once parsed.
type ControlRule struct {
	LinkID     string     `json:"link_id" yaml:"link_id"`
	NodeID     string     `json:"node_id" yaml:"node_id"`
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	Action     Action     `json:"action" yaml:"action"`
	Threshold  float64    `json:"threshold" yaml:"threshold"`
	Priority   int        `json:"priority" yaml:"priority"`
	RuleIndex  int        `json:"rule_index" yaml:"rule_index"`
}

// Fires reports whether the rule condition holds for the given level.
func (r ControlRule) Fires(level float64) bool {
	switch r.Comparator {
	case ComparatorBelow:
		return level < r.Threshold
	case ComparatorAbove:
		return level > r.Threshold
	default:
		return false
	}
}
