// Package sequencer implements the end-to-end test→rule-chain→RCI→
// action driver (C5): the glue that turns one test's Observation into
// rule evaluations, health updates, RCI classification, notifications,
// and — on a confirmed RootCause — an action run.
package sequencer

import (
	"context"
	"time"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/health"
	"github.com/swdiag/core/notify"
	"github.com/swdiag/core/rci"
	"github.com/swdiag/core/rules"
	"github.com/swdiag/core/scheduler"
	"github.com/swdiag/core/types"
)

// Sequencer wires every component package (C1/C2 via store, C6, C7, C8,
// C9) into the single call chain §4's narrative describes: a test
// fires, feeds its output rule, which feeds the next, while RCI and
// health react to every Pass↔Fail transition.
type Sequencer struct {
	store    *graph.Store
	health   *health.Aggregator
	rci      *rci.Engine
	notifier *notify.Notifier
	sched    *scheduler.Scheduler
	logger   types.Logger
}

func New(store *graph.Store, h *health.Aggregator, r *rci.Engine, n *notify.Notifier, sched *scheduler.Scheduler, logger types.Logger) *Sequencer {
	s := &Sequencer{store: store, health: h, rci: r, notifier: n, sched: sched, logger: logger}
	r.ScheduleRetest = func(ruleID graph.NodeID, instanceName string) {
		for stack, seen := []graph.NodeID{ruleID}, map[graph.NodeID]bool{}; len(stack) > 0 && sched != nil; {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n, ok := store.Node(id)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			if n.Test != nil && n.Test.TestKind == types.TestPolled {
				sched.Immediate(id, instanceName)
			} else if n.Rule != nil {
				stack = append(stack, n.Rule.Inputs...)
			}
		}
	}
	r.RunActions = s.runActions
	h.NotifyInterested = func(testID graph.NodeID, health int) {
		s.Publish(context.Background(), testID, "", types.ValueOf(int64(health)))
	}
	h.HealthChanged = func(componentID graph.NodeID, name string, health int) {
		s.notifier.Emit(notify.HealthChangedEvent(name, health))
	}
	return s
}

// runActions invokes every action attached to a confirmed-RootCause
// rule (§3.1 invariant 7: "action.run fires at most once per contiguous
// RootCause streak", enforced by Instance.ActionRan upstream in rci).
func (s *Sequencer) runActions(ruleID graph.NodeID, instanceName string) {
	n, ok := s.store.Node(ruleID)
	if !ok || n.Rule == nil {
		return
	}
	for _, actionID := range n.Rule.Actions {
		an, ok := s.store.Node(actionID)
		if !ok || an.Action == nil || an.Action.Function == nil {
			continue
		}
		obs := an.Action.Function(context.Background(), instanceName, an.Action.UserCtx)
		s.store.RecordObservation(actionID, instanceName, obs)
		if an.Notify {
			if inst, ok := s.store.InstanceByName(actionID, instanceName); ok {
				s.emitResultChanged(an, instanceName, inst)
			}
		}
	}
}

// RunTest is the scheduler.Run callback (§4.4 "dispatch"): it invokes
// the test function with the lock released (§5 "Suspension points"),
// then re-enters the store to publish the result and walk the rule
// chain. A caller that returns InProgress is left for the watchdog
// (scheduler re-queues it on its own period regardless; a real result
// arrives later via test_notify for a notification test).
func (s *Sequencer) RunTest(ctx context.Context, job scheduler.Job) {
	n, ok := s.store.Node(job.Test)
	if !ok || n.Test == nil || n.Test.Function == nil {
		return
	}
	obs := n.Test.Function(ctx, job.InstanceName, n.Test.UserCtx)
	if obs.Result == types.InProgress {
		return
	}
	s.Publish(ctx, job.Test, job.InstanceName, obs)
}

// Publish is also the entry point for test_notify (a Notification test
// pushing its own result) and action_complete (an action reporting
// back in). It records the observation, then walks the chain of rules
// hanging off this node's primary output.
func (s *Sequencer) Publish(ctx context.Context, nodeID graph.NodeID, instanceName string, obs types.Observation) {
	var prevResult types.Result
	var prevScalar int64
	if prevInst, ok := s.store.InstanceByName(nodeID, instanceName); ok {
		prevResult, prevScalar = prevInst.LastResult, prevInst.LastScalar
	}
	inst, ok := s.store.RecordObservation(nodeID, instanceName, obs)
	if !ok {
		return
	}
	changed := inst.LastResult != prevResult || inst.LastScalar != prevScalar
	if n, ok := s.store.Node(nodeID); ok && n.Notify && changed {
		s.emitResultChanged(n, instanceName, inst)
	}

	n, ok := s.store.Node(nodeID)
	if !ok {
		return
	}
	var output graph.NodeID
	switch n.Kind {
	case types.KindTest:
		output = n.Test.PrimaryOutput
	case types.KindRule:
		output = n.Rule.Output
	default:
		return
	}
	for output.Valid() {
		output = s.evaluateRule(ctx, output, instanceName)
	}
}

// evaluateRule runs one rule's operator against the observation its
// input just produced, applies the §4.6/§4.7/§4.8 side effects on a
// state transition, and returns the rule's own Output so the caller can
// continue walking the chain (a rule is itself an input to whatever it
// feeds).
func (s *Sequencer) evaluateRule(ctx context.Context, ruleID graph.NodeID, instanceName string) graph.NodeID {
	n, ok := s.store.Node(ruleID)
	if !ok || n.Rule == nil {
		return graph.NodeID{}
	}
	inst, ok := s.store.InstanceByName(ruleID, instanceName)
	if !ok {
		return graph.NodeID{}
	}

	var result types.Result
	if n.Rule.Operator == types.OpOr || n.Rule.Operator == types.OpAnd {
		result = rules.EvaluateAggregate(n.Rule.Operator, s.inputResults(n.Rule.Inputs, instanceName))
	} else {
		upstream := s.inputObservation(n.Rule.Inputs, instanceName)
		result = rules.Evaluate(n.Rule, inst, upstream, time.Now())
	}

	prev := inst.LastResult
	s.store.RecordObservation(ruleID, instanceName, types.Observation{Result: result})

	if n.Notify && prev != result {
		s.emitResultChanged(n, instanceName, inst)
	}

	s.applyTransition(n, inst, prev, result, instanceName)

	switch result {
	case types.Fail:
		if prev != types.Fail {
			s.rci.OnFail(ruleID, instanceName)
		}
	case types.Pass:
		if prev != types.Pass {
			s.rci.OnPass(ruleID, instanceName)
		}
	case types.Abort:
		s.rci.OnAbort(ruleID, instanceName)
	}

	return n.Rule.Output
}

func (s *Sequencer) inputObservation(inputs []graph.NodeID, instanceName string) types.Observation {
	if len(inputs) == 0 {
		return types.Ignored()
	}
	inst, ok := s.store.InstanceByName(inputs[0], instanceName)
	if !ok {
		return types.Ignored()
	}
	return types.Observation{Result: inst.LastResult, Scalar: inst.LastScalar}
}

func (s *Sequencer) inputResults(inputs []graph.NodeID, instanceName string) []types.Result {
	out := make([]types.Result, 0, len(inputs))
	for _, id := range inputs {
		if inst, ok := s.store.InstanceByName(id, instanceName); ok {
			out = append(out, inst.LastResult)
		}
	}
	return out
}

// applyTransition implements §4.8 "Severity-based health change ...
// applied only on state transitions (Pass↔Fail), never on repeated
// same-state results."
func (s *Sequencer) applyTransition(n *graph.Node, inst *graph.Instance, prev, result types.Result, instanceName string) {
	if result != types.Pass && result != types.Fail {
		return
	}
	if prev == result {
		return
	}
	wentFailing := result == types.Fail
	s.health.OnTransition(n.Parent, n.Rule.Severity, wentFailing)
}

func (s *Sequencer) emitResultChanged(n *graph.Node, instanceName string, inst *graph.Instance) {
	s.notifier.Emit(notify.ResultChangedEvent(n.Name, instanceName, inst.LastResult, inst.LastScalar))
}
