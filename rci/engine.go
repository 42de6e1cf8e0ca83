// Package rci implements the root-cause-identification engine (C7,
// §4.7): classifying rule instances as NotRootCause/Candidate/RootCause
// as failures and recoveries propagate through the dependency DAG.
package rci

import (
	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

const maxConsecutiveAborts = 3

// Engine walks the dependency DAG maintained by a graph.Store. It never
// imports the scheduler or sequencer packages directly — ScheduleRetest
// and RunActions are injected so graph/rules/rci stay the leaves of the
// dependency chain and scheduler/sequencer build on top of them.
type Engine struct {
	store *graph.Store

	// ScheduleRetest requests an immediate rerun of the polled tests
	// beneath ruleID/instanceName (§4.4 "Immediate path", §4.7).
	ScheduleRetest func(ruleID graph.NodeID, instanceName string)
	// RunActions hands a confirmed RootCause to the sequencer (§4.7
	// "hand R to the sequencer to run actions").
	RunActions func(ruleID graph.NodeID, instanceName string)
}

func NewEngine(store *graph.Store) *Engine {
	return &Engine{store: store}
}

// OnFail runs the §4.7 "Propagation — failure" state machine for one
// rule instance that just observed Fail.
func (e *Engine) OnFail(ruleID graph.NodeID, instanceName string) {
	inst, n, ok := e.lookup(ruleID, instanceName)
	if !ok {
		return
	}

	switch inst.RCIClass {
	case types.RootCause:
		return
	case types.Candidate:
		e.determineIfRootCause(ruleID, instanceName)
	default:
		children := e.enabledChildren(n)
		if len(children) > 0 {
			for _, childID := range children {
				e.setClassForInstances(childID, instanceName, types.Candidate)
				if e.ScheduleRetest != nil {
					e.ScheduleRetest(childID, instanceName)
				}
			}
			return
		}
		inst.RCIClass = types.RootCause
		e.propagateRootCauseUpward(n, instanceName)
		if e.RunActions != nil && !inst.ActionRan {
			e.RunActions(ruleID, instanceName)
			inst.ActionRan = true
		}
	}
}

// OnPass runs the §4.7 "Propagation — pass" state machine.
func (e *Engine) OnPass(ruleID graph.NodeID, instanceName string) {
	inst, n, ok := e.lookup(ruleID, instanceName)
	if !ok {
		return
	}
	inst.RCIClass = types.NotRootCause
	inst.ActionRan = false

	for _, parentID := range e.enabledParents(n) {
		pinst, pn, ok := e.lookup(parentID, instanceName)
		if !ok {
			continue
		}
		if pinst.RCIClass == types.RootCause {
			// A RootCause ancestor that now has a failing descendant
			// elsewhere is handled when that descendant reports; a
			// RootCause ancestor whose only failing child just passed
			// no longer has a reason to stay RootCause.
			if !e.anyChildFailing(pn, instanceName) {
				pinst.RCIClass = types.NotRootCause
			}
			continue
		}
		if pinst.LastResult == types.Fail && pinst.RCIClass == types.NotRootCause {
			pinst.RCIClass = types.Candidate
			if e.ScheduleRetest != nil {
				e.ScheduleRetest(parentID, instanceName)
			}
		}
	}
}

// OnAbort implements §4.7 "Abort handling": a Candidate's consecutive
// abort streak is capped so a flapping input can't deadlock RCI.
func (e *Engine) OnAbort(ruleID graph.NodeID, instanceName string) {
	inst, _, ok := e.lookup(ruleID, instanceName)
	if !ok || inst.RCIClass != types.Candidate {
		return
	}
	inst.History.ConsecutiveAborts++
	if inst.History.ConsecutiveAborts >= maxConsecutiveAborts {
		inst.History.ConsecutiveAborts = 0
		e.OnPass(ruleID, instanceName)
	}
}

// determineIfRootCause implements §4.7 "Determine-if-root-cause": R is
// RootCause iff failing and every enabled transitive child is passing
// and none is Candidate; if all pass but some are Candidate, defer.
func (e *Engine) determineIfRootCause(ruleID graph.NodeID, instanceName string) {
	inst, n, ok := e.lookup(ruleID, instanceName)
	if !ok || inst.LastResult != types.Fail {
		return
	}

	allPassing, anyCandidate := e.childStatus(n, instanceName, map[graph.NodeID]bool{})
	if !allPassing {
		return
	}
	if anyCandidate {
		return // defer — another tick will resolve
	}

	inst.RCIClass = types.RootCause
	e.propagateRootCauseUpward(n, instanceName)
	if e.RunActions != nil && !inst.ActionRan {
		e.RunActions(ruleID, instanceName)
		inst.ActionRan = true
	}
}

// childStatus recurses through enabled children (expanding Component
// nodes to their bottom-boundary set, §4.7 "Component expansion"),
// reporting whether every reachable leaf/child is passing and whether
// any is still Candidate.
func (e *Engine) childStatus(n *graph.Node, instanceName string, visited map[graph.NodeID]bool) (allPassing, anyCandidate bool) {
	allPassing = true
	for _, childID := range e.enabledChildren(n) {
		if visited[childID] {
			continue
		}
		visited[childID] = true

		cn, ok := e.store.Node(childID)
		if !ok {
			continue
		}
		if cn.Kind == types.KindComponent {
			for boundaryID := range cn.Component.BottomBoundary {
				bn, ok := e.store.Node(boundaryID)
				if !ok {
					continue
				}
				p, c := e.childStatus(bn, instanceName, visited)
				allPassing = allPassing && p
				anyCandidate = anyCandidate || c
			}
			continue
		}

		cinst, _, ok := e.lookup(childID, instanceName)
		if !ok {
			continue
		}
		if cinst.RCIClass == types.Candidate {
			anyCandidate = true
		}
		if cinst.LastResult == types.Fail {
			allPassing = false
		}
	}
	return allPassing, anyCandidate
}

func (e *Engine) anyChildFailing(n *graph.Node, instanceName string) bool {
	for _, childID := range e.enabledChildren(n) {
		cinst, _, ok := e.lookup(childID, instanceName)
		if ok && cinst.LastResult == types.Fail {
			return true
		}
	}
	return false
}

// propagateRootCauseUpward clears a stale RootCause classification on
// ancestors and reschedules ancestors that are currently passing, per
// §4.7 "propagate upward (clear any ancestor RootCause, reschedule
// currently-passing ancestors)".
func (e *Engine) propagateRootCauseUpward(n *graph.Node, instanceName string) {
	for _, parentID := range e.enabledParents(n) {
		pinst, pn, ok := e.lookup(parentID, instanceName)
		if !ok {
			continue
		}
		if pinst.RCIClass == types.RootCause {
			pinst.RCIClass = types.NotRootCause
		}
		if pinst.LastResult == types.Pass && e.ScheduleRetest != nil {
			e.ScheduleRetest(parentID, instanceName)
		}
		e.propagateRootCauseUpward(pn, instanceName)
	}
}

// OnRuleDelete implements §4.7 "Rule deletion": removal of a failing,
// RootCause, or Candidate rule can promote a new ancestor, so
// determine-if-root-cause reruns on each parent.
func (e *Engine) OnRuleDelete(ruleID graph.NodeID) {
	n, ok := e.store.Node(ruleID)
	if !ok {
		return
	}
	for _, inst := range e.store.Instances(ruleID) {
		if inst.LastResult != types.Fail && inst.RCIClass == types.NotRootCause {
			continue
		}
		for _, parentID := range n.ParentDepend {
			e.determineIfRootCause(parentID, inst.Name)
		}
	}
}

// enabledChildren/enabledParents expand a Component endpoint to its
// boundary set (§4.7): children go through the bottom boundary (toward
// leaves), parents through the top boundary (toward the system root).
func (e *Engine) enabledChildren(n *graph.Node) []graph.NodeID {
	return e.expand(n.ChildDepend, false)
}

func (e *Engine) enabledParents(n *graph.Node) []graph.NodeID {
	return e.expand(n.ParentDepend, true)
}

func (e *Engine) expand(ids []graph.NodeID, upward bool) []graph.NodeID {
	var out []graph.NodeID
	for _, id := range ids {
		cn, ok := e.store.Node(id)
		if !ok {
			continue
		}
		enabled := cn.State == types.Enabled || cn.State == types.Created
		if !enabled {
			continue
		}
		if cn.Kind != types.KindComponent {
			out = append(out, id)
			continue
		}
		boundary := cn.Component.BottomBoundary
		if upward {
			boundary = cn.Component.TopBoundary
		}
		for b := range boundary {
			out = append(out, b)
		}
	}
	return out
}

func (e *Engine) setClassForInstances(ruleID graph.NodeID, instanceName string, class types.RCIClass) {
	if instanceName == "" {
		for _, inst := range e.store.Instances(ruleID) {
			inst.RCIClass = class
		}
		return
	}
	if inst, ok := e.store.InstanceByName(ruleID, instanceName); ok {
		inst.RCIClass = class
	}
}

// lookup resolves (ruleID, instanceName) honoring §4.7 "Instance
// scoping": a named instance only ever interacts with same-named
// instances on neighbours.
func (e *Engine) lookup(ruleID graph.NodeID, instanceName string) (*graph.Instance, *graph.Node, bool) {
	n, ok := e.store.Node(ruleID)
	if !ok {
		return nil, nil, false
	}
	inst, ok := e.store.InstanceByName(ruleID, instanceName)
	if !ok || inst.History == nil {
		return nil, nil, false
	}
	return inst, n, true
}
