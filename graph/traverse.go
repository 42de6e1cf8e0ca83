package graph

import "github.com/swdiag/core/types"

// Relation names the traversal CLI/RCI walk over (§4.1 "Traversal
// primitives").
type Relation int

const (
	RelTest Relation = iota
	RelRule
	RelAction
	RelComponent
	RelNextInSys
	RelNextInComp
	RelNextInTest
	RelParentComp
	RelChildComp
)

// Iterate performs the pre-order DFS described in §4.1: "Containment
// walks visit children before peers before parent-peers." `from` is
// the component to start at; NodeID{} (the zero value) means "the
// system component". The visitor is invoked once per node in walk
// order; returning false stops the traversal early.
func (s *Store) Iterate(rel Relation, from NodeID, visit func(NodeID) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := from
	if !start.Valid() {
		start = s.system
	}
	s.iterateLocked(rel, start, visit)
}

func (s *Store) iterateLocked(rel Relation, from NodeID, visit func(NodeID) bool) bool {
	n, ok := s.lookupNode(from)
	if !ok || n.Component == nil {
		return true
	}
	c := n.Component

	children := relationChildren(rel, c)
	for _, child := range children {
		if !visit(child) {
			return false
		}
		if cn, ok := s.lookupNode(child); ok && cn.Kind == types.KindComponent {
			if !s.iterateLocked(rel, child, visit) {
				return false
			}
		}
	}

	// peers-before-parent-peers: nested sub-components are walked above
	// as part of the children loop (depth-first); once a subtree is
	// exhausted, iterateLocked returns to its caller's loop, which then
	// advances to the next peer automatically.
	return true
}

func relationChildren(rel Relation, c *ComponentBody) []NodeID {
	switch rel {
	case RelTest:
		return c.Tests
	case RelRule:
		return c.Rules
	case RelAction:
		return c.Actions
	case RelComponent, RelChildComp:
		return c.Components
	default:
		return c.Components
	}
}

// FirstRel/NextRel give callers an iterator-style alternative to the visitor-callback Iterate, matching
// the original's first_rel/next_rel pairing.
type Cursor struct {
	store *Store
	rel   Relation
	list  []NodeID
	pos   int
}

func (s *Store) FirstRel(rel Relation, from NodeID) (NodeID, *Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := from
	if !start.Valid() {
		start = s.system
	}
	n, ok := s.lookupNode(start)
	if !ok || n.Component == nil {
		return NodeID{}, nil
	}
	list := relationChildren(rel, n.Component)
	cur := &Cursor{store: s, rel: rel, list: list, pos: 0}
	if len(list) == 0 {
		return NodeID{}, cur
	}
	return list[0], cur
}

func (c *Cursor) NextRel() (NodeID, bool) {
	c.pos++
	if c.pos >= len(c.list) {
		return NodeID{}, false
	}
	return c.list[c.pos], true
}
