package scada

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"waterscada/internal/controls"
)

func TestArbitrateEmptyGroup(t *testing.T) {
	if _, ok := arbitrate(nil, 1.0); ok {
		t.Fatal("empty group must not fire")
	}
}

func TestArbitrateSingleRuleDegenerateCase(t *testing.T) {
	// The legacy single-mode logic is just a rule list of length one.
	rules := []controls.ControlRule{
		{Comparator: controls.ComparatorBelow, Action: controls.ActionOpen, Threshold: 4.0},
	}
	action, ok := arbitrate(rules, 3.0)
	if !ok || action != controls.ActionOpen {
		t.Fatalf("expected OPEN, got %v %v", action, ok)
	}
	if _, ok := arbitrate(rules, 5.0); ok {
		t.Fatal("rule must not fire above threshold")
	}
}

func genArbitrationRule() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(controls.ComparatorBelow, controls.ComparatorAbove),
		gen.OneConstOf(controls.ActionOpen, controls.ActionClosed),
		gen.Float64Range(0, 10),
		gen.IntRange(0, 5),
	).Map(func(values []interface{}) controls.ControlRule {
		return controls.ControlRule{
			LinkID:     "P1",
			NodeID:     "T1",
			Comparator: values[0].(controls.Comparator),
			Action:     values[1].(controls.Action),
			Threshold:  values[2].(float64),
			Priority:   values[3].(int),
		}
	})
}

func TestArbitrationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("winner is a firing rule dominating all others", prop.ForAll(
		func(rules []controls.ControlRule, level float64) bool {
			for i := range rules {
				rules[i].RuleIndex = i
			}
			action, ok := arbitrate(rules, level)
			var winner *controls.ControlRule
			anyFired := false
			for i := range rules {
				if !rules[i].Fires(level) {
					continue
				}
				anyFired = true
				if winner == nil || beats(rules[i], *winner) {
					winner = &rules[i]
				}
			}
			if !anyFired {
				return !ok
			}
			return ok && action == winner.Action
		},
		gen.SliceOf(genArbitrationRule()),
		gen.Float64Range(0, 10),
	))

	properties.Property("result is order independent", prop.ForAll(
		func(rules []controls.ControlRule, level float64) bool {
			for i := range rules {
				rules[i].RuleIndex = i
			}
			forward, okF := arbitrate(rules, level)
			reversed := make([]controls.ControlRule, len(rules))
			for i, rule := range rules {
				reversed[len(rules)-1-i] = rule
			}
			backward, okB := arbitrate(reversed, level)
			return okF == okB && forward == backward
		},
		gen.SliceOf(genArbitrationRule()),
		gen.Float64Range(0, 10),
	))

	properties.Property("repeated evaluation is stable", prop.ForAll(
		func(rules []controls.ControlRule, level float64) bool {
			for i := range rules {
				rules[i].RuleIndex = i
			}
			a1, ok1 := arbitrate(rules, level)
			a2, ok2 := arbitrate(rules, level)
			return ok1 == ok2 && a1 == a2
		},
		gen.SliceOf(genArbitrationRule()),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}
