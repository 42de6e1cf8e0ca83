package graph

import "github.com/swdiag/core/types"

// Validate re-checks a node's cross-linked invariants after a
// structural mutation (§4.1 "Validation"): rule↔action lists must be
// symmetric, a component's children must name it as their parent, and a
// nil list is repaired to an empty one rather than treated as
// corruption. Rule input↔output links are not checked. A node that
// fails repair is demoted to InvalidState and a Corruption error is
// returned.
func (s *Store) Validate(id NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked(id)
}

func (s *Store) validateLocked(id NodeID) error {
	n, ok := s.lookupNode(id)
	if !ok {
		return types.NewEngineError(types.ErrNotFound, id.String(), nil)
	}

	switch n.Kind {
	case types.KindRule:
		return s.validateRule(n)
	case types.KindAction:
		return s.validateAction(n)
	case types.KindComponent:
		return s.validateComponent(n)
	}
	return nil
}

func (s *Store) validateRule(n *Node) error {
	r := n.Rule
	if r == nil {
		return s.corrupt(n)
	}
	if r.Inputs == nil {
		r.Inputs = []NodeID{}
	}
	if r.Actions == nil {
		r.Actions = []NodeID{}
	}
	for _, actionID := range r.Actions {
		an, ok := s.lookupNode(actionID)
		if !ok || an.Action == nil {
			return s.corrupt(n)
		}
		if !containsID(an.Action.Rules, n.ID) {
			an.Action.Rules = append(an.Action.Rules, n.ID)
		}
	}
	return nil
}

func (s *Store) validateAction(n *Node) error {
	a := n.Action
	if a == nil {
		return s.corrupt(n)
	}
	if a.Rules == nil {
		a.Rules = []NodeID{}
	}
	for _, ruleID := range a.Rules {
		rn, ok := s.lookupNode(ruleID)
		if !ok || rn.Rule == nil {
			return s.corrupt(n)
		}
		if !containsID(rn.Rule.Actions, n.ID) {
			rn.Rule.Actions = append(rn.Rule.Actions, n.ID)
		}
	}
	return nil
}

func (s *Store) validateComponent(n *Node) error {
	c := n.Component
	if c == nil {
		return s.corrupt(n)
	}
	if c.TopBoundary == nil {
		c.TopBoundary = map[NodeID]bool{}
	}
	if c.BottomBoundary == nil {
		c.BottomBoundary = map[NodeID]bool{}
	}
	if c.SeverityTally == nil {
		c.SeverityTally = map[types.Severity]int{}
	}
	for _, childLists := range [][]NodeID{c.Tests, c.Rules, c.Actions, c.Components, c.None} {
		for _, id := range childLists {
			if child, ok := s.lookupNode(id); !ok || child.Parent != n.ID {
				return s.corrupt(n)
			}
		}
	}
	return nil
}

func (s *Store) corrupt(n *Node) error {
	n.State = types.InvalidState
	s.logger.Errorf("graph: node %q (%s) failed validation, marked Invalid", n.Name, n.Kind)
	return types.NewEngineError(types.ErrCorruption, n.Name, nil)
}
