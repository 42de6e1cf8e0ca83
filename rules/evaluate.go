// Package rules implements the rule evaluator (C6, §4.6): the fixed
// operator table that turns a test's or input rule's observation into
// one of Pass/Fail/Abort for the owning rule, plus the counting-operator
// history (ring buffers, consecutive counts) that backs NInRow/NInM/
// NInTimeM/NEver/FailForTimeN.
package rules

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr/vm"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

// Evaluate applies obs to inst according to rule's configured operator,
// updating inst's stats and history exactly once (§4.6, last paragraph),
// and returns the rule-level Result the RCI engine should act on.
//
// Abort/Ignore observations never reach the table proper: they pass
// straight through without advancing or resetting counting operators,
// matching "Abort or Ignore inputs do not advance counting operators".
func Evaluate(rule *graph.RuleBody, inst *graph.Instance, obs types.Observation, now time.Time) types.Result {
	if obs.Result == types.Ignore {
		return types.Ignore
	}
	if obs.Result == types.Abort {
		return types.Abort
	}

	if inst.History == nil {
		inst.History = &graph.History{}
	}
	h := inst.History

	switch rule.Operator {
	case types.OpOnFail:
		if obs.Result == types.Fail {
			return types.Fail
		}
		return types.Pass

	case types.OpEqualToN:
		return boolResult(obs.Result == types.Value && obs.Scalar == rule.N)
	case types.OpNotEqualToN:
		return boolResult(obs.Result == types.Value && obs.Scalar != rule.N)
	case types.OpLessThanN:
		return boolResult(obs.Result == types.Value && obs.Scalar < rule.N)
	case types.OpGreaterThanN:
		return boolResult(obs.Result == types.Value && obs.Scalar > rule.N)
	case types.OpRangeNtoM:
		return boolResult(obs.Result == types.Value && (obs.Scalar < rule.N || obs.Scalar > rule.M))

	case types.OpDisable:
		return types.Abort

	case types.OpNEver:
		if obs.Result == types.Fail {
			h.NEverCount++
			if h.NEverCount >= rule.N {
				h.NEverCount = 0
				return types.Fail
			}
		}
		return types.Pass

	case types.OpNInRow:
		if obs.Result == types.Fail {
			h.InRowCount++
		} else {
			h.InRowCount = 0
		}
		return boolResult(h.InRowCount >= rule.N)

	case types.OpNInM:
		if h.BitRing == nil {
			h.BitRing = graph.NewBitRing(int(rule.M))
		}
		h.BitRing.Push(obs.Result == types.Fail)
		return boolResult(int64(h.BitRing.CountFails()) >= rule.N)

	case types.OpNInTimeM:
		if h.TimeRing == nil {
			h.TimeRing = &graph.TimeRing{}
		}
		window := time.Duration(rule.M) * time.Millisecond
		if obs.Result == types.Fail {
			h.TimeRing.PushFail(now, window)
		}
		return boolResult(int64(h.TimeRing.CountInWindow(now, window)) >= rule.N)

	case types.OpFailForTimeN:
		if obs.Result == types.Fail {
			if !h.FailSinceValid {
				h.FailSince = now
				h.FailSinceValid = true
			}
			elapsed := now.Sub(h.FailSince)
			return boolResult(elapsed >= time.Duration(rule.N)*time.Millisecond)
		}
		h.FailSinceValid = false
		return types.Pass

	case types.OpOr, types.OpAnd:
		// Or/And are evaluated over the rule's full input set by the
		// caller (sequencer), not per-observation here; a bare Evaluate
		// call on one input's observation just reports it through so
		// the aggregation step in EvaluateAggregate can fold it in.
		return obs.Result

	case types.OpScript:
		return evaluateScript(rule, obs)

	default:
		return types.Abort
	}
}

func boolResult(triggered bool) types.Result {
	if triggered {
		return types.Fail
	}
	return types.Pass
}

// EvaluateAggregate folds a rule's full set of current input results
// through Or/And (§4.6): "any enabled input's last_result = Fail" /
// "every enabled input's last_result = Pass".
func EvaluateAggregate(op types.Operator, inputs []types.Result) types.Result {
	switch op {
	case types.OpOr:
		for _, r := range inputs {
			if r == types.Fail {
				return types.Fail
			}
		}
		return types.Pass
	case types.OpAnd:
		for _, r := range inputs {
			if r != types.Pass {
				return types.Fail
			}
		}
		return types.Pass
	default:
		return types.Abort
	}
}

// evaluateScript runs a compiled expr-lang program against the
// observation, exposing `result` (string) and `value` (int64) to the
// expression and expecting a boolean back. Supplements §4.6's fixed
// table with a user-extensible operator (SPEC_FULL.md domain stack).
func evaluateScript(rule *graph.RuleBody, obs types.Observation) types.Result {
	program, ok := rule.Script.(*vm.Program)
	if !ok || program == nil {
		return types.Abort
	}
	env := map[string]any{
		"result": obs.Result.String(),
		"value":  obs.Scalar,
	}
	out, err := vm.Run(program, env)
	if err != nil {
		return types.Abort
	}
	triggered, ok := out.(bool)
	if !ok {
		return types.Abort
	}
	return boolResult(triggered)
}

// CompileScript compiles source into the *vm.Program a Script-operator
// rule stores in its RuleBody.Script field.
func CompileScript(source string) (any, error) {
	program, err := compile(source)
	if err != nil {
		return nil, fmt.Errorf("rules: compile script: %w", err)
	}
	return program, nil
}
