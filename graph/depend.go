package graph

import (
	"github.com/gofrs/uuid/v5"
	"github.com/swdiag/core/types"
)

// CreateDepend links parent → child in the dependency DAG (§4.5),
// running the four-stage check under the graph lock. ok is false
// (with a nil error) when the link already existed — a duplicate is
// not an error.
func (s *Store) CreateDepend(parent, child NodeID) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDependLocked(parent, child)
}

func (s *Store) createDependLocked(parent, child NodeID) (bool, error) {
	pn, ok := s.lookupNode(parent)
	if !ok {
		return false, types.NewEngineError(types.ErrNotFound, parent.String(), nil)
	}
	cn, ok := s.lookupNode(child)
	if !ok {
		return false, types.NewEngineError(types.ErrNotFound, child.String(), nil)
	}

	// Stage 1: type check.
	if !isDependable(pn.Kind) || !isDependable(cn.Kind) {
		return false, types.NewEngineError(types.ErrWrongType, parent.String(), nil)
	}

	// Stage 2: existing-link check — duplicate, not an error.
	if containsID(pn.ChildDepend, child) || containsID(cn.ParentDepend, parent) {
		return false, nil
	}

	// Stage 3: domain colouring.
	if err := s.colorDomains(pn, cn); err != nil {
		return false, err
	}

	// Stage 4: link, then update component top/bottom boundaries.
	pn.ChildDepend = append(pn.ChildDepend, child)
	cn.ParentDepend = append(cn.ParentDepend, parent)
	s.updateBoundaries(pn, cn)

	if err := s.validateLocked(parent); err != nil {
		return true, err
	}
	if err := s.validateLocked(child); err != nil {
		return true, err
	}
	return true, nil
}

func isDependable(k types.Kind) bool {
	return k == types.KindRule || k == types.KindComponent || k == types.KindNone
}

func containsID(list []NodeID, id NodeID) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}

// colorDomains implements §4.5 stage 3. Colours distinguish regions of
// the DAG that cannot yet reach each other, so most edges are admitted
// without a DFS; only a same-colour or transitively-reachable pair
// pays for the cycle search.
func (s *Store) colorDomains(parent, child *Node) error {
	switch {
	case parent.Domain == noDomain && child.Domain == noDomain:
		d := s.newDomain()
		parent.Domain = d
		child.Domain = d
		return nil

	case parent.Domain == noDomain:
		parent.Domain = child.Domain
		return nil

	case child.Domain == noDomain:
		child.Domain = parent.Domain
		return nil

	case parent.Domain == child.Domain:
		found, err := s.dfsFinds(child.ID, parent.ID, map[NodeID]bool{}, 0)
		if err != nil {
			return err
		}
		if found {
			return types.NewEngineError(types.ErrCycleDetected, child.Name, nil)
		}
		return nil

	default:
		if s.reaches(child.Domain, parent.Domain) {
			found, err := s.dfsFinds(child.ID, parent.ID, map[NodeID]bool{}, 0)
			if err != nil {
				return err
			}
			if found {
				return types.NewEngineError(types.ErrCycleDetected, child.Name, nil)
			}
			return nil
		}
		s.markReaches(parent.Domain, child.Domain)
		return nil
	}
}

// newDomain allocates a fresh loop-domain colour. A random UUID, rather
// than the original's incrementing counter, so colouring stays
// collision-proof even if domains are ever shared across engines in
// one process (SPEC_FULL.md domain-stack note on gofrs/uuid).
func (s *Store) newDomain() DomainID {
	id, err := uuid.NewV4()
	if err != nil {
		s.nextDomain++
		return DomainID(newDomainColor(s.nextDomain))
	}
	return DomainID(id.String())
}

// reaches reports whether `from` can already reach `to` via the
// reachability table built up by prior markReaches calls.
func (s *Store) reaches(from, to DomainID) bool {
	if from == to {
		return true
	}
	return s.domainReach[from][to]
}

// markReaches records that `to` (and everything `to` could already
// reach) is now reachable from `from` and everything that could
// already reach `from` — keeping the table transitively closed.
func (s *Store) markReaches(from, to DomainID) {
	reachableFromTo := map[DomainID]bool{to: true}
	for d := range s.domainReach[to] {
		reachableFromTo[d] = true
	}

	predecessors := []DomainID{from}
	for d, m := range s.domainReach {
		if m[from] {
			predecessors = append(predecessors, d)
		}
	}

	for _, p := range predecessors {
		if s.domainReach[p] == nil {
			s.domainReach[p] = map[DomainID]bool{}
		}
		for d := range reachableFromTo {
			s.domainReach[p][d] = true
		}
	}
}

// dfsFinds is the fallback exact cycle check: is `target` reachable
// from `start` by following child-dependency edges? Depth is bounded
// by MaxSerialRules (§4.5 "Maximum recursion") to cap worst-case stack
// growth on a pathological configuration instead of overflowing it.
func (s *Store) dfsFinds(start, target NodeID, visited map[NodeID]bool, depth int) (bool, error) {
	if start == target {
		return true, nil
	}
	limit := s.cfg.MaxSerialRules
	if limit <= 0 {
		limit = 25
	}
	if depth > limit {
		return false, types.NewEngineError(types.ErrDepthExceeded, start.String(), nil)
	}
	if visited[start] {
		return false, nil
	}
	visited[start] = true
	n, ok := s.lookupNode(start)
	if !ok {
		return false, nil
	}
	for _, next := range n.ChildDepend {
		found, err := s.dfsFinds(next, target, visited, depth+1)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

// updateBoundaries maintains each enclosing component's top/bottom
// boundary sets (§4.5 stage 4, §4.7): a node stops being a top-boundary
// once it gains a parent edge, and stops being bottom-boundary once it
// gains a child edge, within its own component.
func (s *Store) updateBoundaries(parent, child *Node) {
	if pc, ok := s.lookupNode(parent.Parent); ok && pc.Component != nil {
		delete(pc.Component.BottomBoundary, parent.ID)
	}
	if cc, ok := s.lookupNode(child.Parent); ok && cc.Component != nil {
		delete(cc.Component.TopBoundary, child.ID)
	}
}

const domainAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newDomainColor renders a counter as a short base36 tag. newDomain
// falls back to it only when UUID generation fails; any distinct,
// comparable value works as a colour, since colours are only compared
// for equality.
func newDomainColor(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = domainAlphabet[n%36]
		n /= 36
	}
	return string(buf[i:])
}
