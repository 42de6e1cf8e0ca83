package graph

import (
	"strings"
	"sync"

	"github.com/swdiag/core/types"
)

const SystemComponentName = "system"

// Hooks lets higher layers (RCI, sequencer) observe graph mutations
// without graph importing them back — keeping C1 the leaf dependency
// the rest of the engine builds on.
type Hooks struct {
	// BeforeDeleteRule fires before a Rule node is actually removed,
	// so RCI can run determine-if-root-cause on its parents first
	// (§4.7 "Rule deletion").
	BeforeDeleteRule func(id NodeID)
	// BeforeReclaim fires just before an instance's owned memory is
	// released by the reclaimer (§4.3).
	BeforeReclaim func(n *Node, inst *Instance)
}

// Store is the graph store (C1) plus the instance table (C2): it owns
// every node and edge, enforces naming/typing/cycle-freedom, and fans
// each node out to its instances. All mutation goes through the single
// exclusive lock described in §5; see the Locked-suffixed methods for
// the internal call graph that avoids needing true lock reentrancy.
type Store struct {
	mu sync.Mutex

	cfg    types.Config
	logger types.Logger
	hooks  Hooks

	byName map[string]NodeID
	arena  []*Node // index 0 unused (NodeID zero value is invalid)
	free   []uint32

	instances map[NodeID]*instanceTable

	// reclaimCount tracks how many of a deleted node's instances are
	// still awaiting the reclaimer, so the arena slot is only freed once
	// the last one drains (§4.3).
	reclaimCount map[NodeID]int

	system NodeID

	domainReach map[DomainID]map[DomainID]bool
	nextDomain  uint64

	reclaimer *Reclaimer
}

func NewStore(cfg types.Config) *Store {
	s := &Store{
		cfg:         cfg,
		logger:      cfg.Logger,
		byName:      map[string]NodeID{},
		arena:       make([]*Node, 1), // reserve slot 0
		instances:   map[NodeID]*instanceTable{},
		domainReach: map[DomainID]map[DomainID]bool{},
		reclaimCount: map[NodeID]int{},
	}
	s.reclaimer = NewReclaimer(s, cfg)
	sys, err := s.getOrCreateLocked(SystemComponentName, types.KindComponent)
	if err != nil {
		panic("graph: failed to create system component: " + err.Error())
	}
	s.system = sys.ID
	return s
}

func (s *Store) SetHooks(h Hooks) { s.hooks = h }
func (s *Store) System() NodeID   { return s.system }
func (s *Store) Reclaimer() *Reclaimer { return s.reclaimer }

// normalizeName replaces the reserved separators and truncates
// over-long names, per §4.1 "Naming".
func normalizeName(name string) (string, bool) {
	r := strings.NewReplacer(" ", "_", "@", "_")
	name = r.Replace(name)
	truncated := false
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
		truncated = true
	}
	return name, truncated
}

func (s *Store) allocate() NodeID {
	if len(s.free) > 0 {
		idx := s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
		n := s.arena[idx]
		return NodeID{index: idx, gen: n.gen}
	}
	idx := uint32(len(s.arena))
	s.arena = append(s.arena, nil)
	return NodeID{index: idx, gen: 0}
}

func (s *Store) lookupNode(id NodeID) (*Node, bool) {
	if !id.Valid() || int(id.index) >= len(s.arena) {
		return nil, false
	}
	n := s.arena[id.index]
	if n == nil || n.gen != id.gen {
		return nil, false
	}
	return n, true
}

// GetOrCreate finds a node by name, growing a forward-referenced None
// node into `kind` if one exists, or creating a fresh node. Unrecognized
// name collisions between two different concrete kinds are reported as
// InvalidArgument (§4.1 "NameCollision").
func (s *Store) GetOrCreate(name string, kind types.Kind) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(name, kind)
}

func (s *Store) getOrCreateLocked(name string, kind types.Kind) (*Node, error) {
	normalized, truncated := normalizeName(name)
	if truncated {
		s.logger.Warnf("graph: name %q truncated to %q", name, normalized)
	}
	if normalized == "" {
		return nil, types.NewEngineError(types.ErrInvalidArgument, name, nil)
	}

	if id, ok := s.byName[normalized]; ok {
		n, _ := s.lookupNode(id)
		switch {
		case n.Kind == kind:
			return n, nil
		case kind == types.KindNone:
			// Caller only needs "something by this name" (e.g. a
			// dependency or component-membership endpoint) and doesn't
			// care whether it's already concrete — return it as-is.
			return n, nil
		case n.Kind == types.KindNone:
			s.growLocked(n, kind)
			return n, nil
		default:
			return nil, types.NewEngineError(types.ErrInvalidArgument, normalized, nil)
		}
	}

	id := s.allocate()
	n := &Node{
		Header: Header{
			ID:           id,
			Name:         normalized,
			Kind:         kind,
			State:        types.Created,
			DefaultState: types.Enabled,
			CLIState:     types.Enabled,
			Parent:       s.system,
		},
	}
	s.attachBody(n, kind)
	s.arena[id.index] = n
	s.byName[normalized] = id
	s.instances[id] = newInstanceTable(id)

	if kind != types.KindComponent || id != s.system {
		if sys, ok := s.lookupNode(s.system); ok && sys.Component != nil {
			s.addToComponentList(sys.Component, kind, id)
		}
	}
	return n, nil
}

func (s *Store) attachBody(n *Node, kind types.Kind) {
	switch kind {
	case types.KindTest:
		n.Test = &TestBody{}
	case types.KindRule:
		n.Rule = &RuleBody{}
	case types.KindAction:
		n.Action = &ActionBody{}
	case types.KindComponent:
		n.Component = newComponentBody(s.cfg.HealthThreshold)
	}
}

// growLocked promotes a None-typed forward reference into a concrete
// kind in place, preserving its NodeID/identity (§4.1 "Type polymorphism").
func (s *Store) growLocked(n *Node, kind types.Kind) {
	if parent, ok := s.lookupNode(n.Parent); ok && parent.Component != nil {
		s.removeFromComponentList(parent.Component, types.KindNone, n.ID)
		s.addToComponentList(parent.Component, kind, n.ID)
	}
	n.Kind = kind
	n.PendingRef = false
	s.attachBody(n, kind)
}

func (s *Store) addToComponentList(c *ComponentBody, kind types.Kind, id NodeID) {
	switch kind {
	case types.KindTest:
		c.Tests = append(c.Tests, id)
	case types.KindRule:
		c.Rules = append(c.Rules, id)
	case types.KindAction:
		c.Actions = append(c.Actions, id)
	case types.KindComponent:
		c.Components = append(c.Components, id)
	default:
		c.None = append(c.None, id)
	}
}

func (s *Store) removeFromComponentList(c *ComponentBody, kind types.Kind, id NodeID) {
	remove := func(list []NodeID) []NodeID {
		out := list[:0]
		for _, x := range list {
			if x != id {
				out = append(out, x)
			}
		}
		return out
	}
	switch kind {
	case types.KindTest:
		c.Tests = remove(c.Tests)
	case types.KindRule:
		c.Rules = remove(c.Rules)
	case types.KindAction:
		c.Actions = remove(c.Actions)
	case types.KindComponent:
		c.Components = remove(c.Components)
	default:
		c.None = remove(c.None)
	}
}

// GetByName looks up a node, normalizing the name first, and enforces
// an optional kind filter (§4.1 "BadType").
func (s *Store) GetByName(name string, kindFilter types.Kind) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized, _ := normalizeName(name)
	id, ok := s.byName[normalized]
	if !ok {
		return nil, types.NewEngineError(types.ErrNotFound, normalized, nil)
	}
	n, _ := s.lookupNode(id)
	if kindFilter != types.KindNone && n.Kind != kindFilter {
		return nil, types.NewEngineError(types.ErrWrongType, normalized, nil)
	}
	return n, nil
}

func (s *Store) Node(id NodeID) (*Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupNode(id)
}

func (s *Store) Instances(id NodeID) []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.instances[id]
	if !ok {
		return nil
	}
	return t.Members()
}

func (s *Store) InstanceByName(id NodeID, name string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return t.ByName(name)
}

// RecordObservation applies obs to (id, name) and folds it into the
// primary per §4.2, returning the instance it updated.
func (s *Store) RecordObservation(id NodeID, name string, obs types.Observation) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	inst, ok := t.ByName(name)
	if !ok {
		return nil, false
	}
	t.RecordResult(inst, obs)
	return inst, true
}

// CreateInstance creates a named member instance on id (§4.2).
func (s *Store) CreateInstance(id NodeID, name string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.instances[id]
	if !ok {
		return nil, types.NewEngineError(types.ErrNotFound, id.String(), nil)
	}
	return t.CreateMember(name)
}

// LinkIntoComponent moves a node from its current parent component into
// `parent`, enforcing invariant 2 (exactly one parent component).
func (s *Store) LinkIntoComponent(parent, child NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentNode, ok := s.lookupNode(parent)
	if !ok || parentNode.Kind != types.KindComponent {
		return types.NewEngineError(types.ErrWrongType, parent.String(), nil)
	}
	childNode, ok := s.lookupNode(child)
	if !ok {
		return types.NewEngineError(types.ErrNotFound, child.String(), nil)
	}
	if childNode.Kind == types.KindComponent && s.cfg.MaxCompNesting > 0 {
		if depth := s.componentDepthLocked(parent) + 1; depth > s.cfg.MaxCompNesting {
			return types.NewEngineError(types.ErrDepthExceeded, child.String(), nil)
		}
	}
	if oldParent, ok := s.lookupNode(childNode.Parent); ok && oldParent.Component != nil {
		s.removeFromComponentList(oldParent.Component, childNode.Kind, child)
	}
	s.addToComponentList(parentNode.Component, childNode.Kind, child)
	childNode.Parent = parent
	return nil
}

// componentDepthLocked counts the parent-component hops from id up to
// the system root (§4.5 "Maximum recursion (... 255 comp nestings)").
func (s *Store) componentDepthLocked(id NodeID) int {
	depth := 0
	for {
		n, ok := s.lookupNode(id)
		if !ok || !n.Parent.Valid() {
			return depth
		}
		depth++
		id = n.Parent
	}
}

// AddInterestedTest subscribes test to component's health (§3.1
// "a list of tests interested in this component's health", §4.8
// "Subscribed tests ... receive the new health value as a synthetic
// Value notification"). Idempotent: re-subscribing the same test twice
// is a no-op.
func (s *Store) AddInterestedTest(component, test NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cn, ok := s.lookupNode(component)
	if !ok || cn.Component == nil {
		return types.NewEngineError(types.ErrWrongType, component.String(), nil)
	}
	tn, ok := s.lookupNode(test)
	if !ok || tn.Kind != types.KindTest {
		return types.NewEngineError(types.ErrWrongType, test.String(), nil)
	}
	if containsID(cn.Component.InterestedTests, test) {
		return nil
	}
	cn.Component.InterestedTests = append(cn.Component.InterestedTests, test)
	return nil
}

// Delete logically deletes a node (§3.5): state flips to Deleted, it is
// removed from the name index and its parent's lists, and its primary
// (plus any member) instances are enqueued for the reclaimer. Physical
// freeing happens asynchronously (§4.3).
func (s *Store) Delete(id NodeID) error {
	// The hook calls back into locking Store methods, so it runs before
	// the lock is taken.
	if n, ok := s.Node(id); ok && n.Kind == types.KindRule && s.hooks.BeforeDeleteRule != nil {
		s.hooks.BeforeDeleteRule(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *Store) deleteLocked(id NodeID) error {
	n, ok := s.lookupNode(id)
	if !ok {
		return types.NewEngineError(types.ErrNotFound, id.String(), nil)
	}

	for _, dep := range append(append([]NodeID{}, n.ParentDepend...), n.ChildDepend...) {
		s.unlink(id, dep)
	}

	if parent, ok := s.lookupNode(n.Parent); ok && parent.Component != nil {
		s.removeFromComponentList(parent.Component, n.Kind, id)
		delete(parent.Component.TopBoundary, id)
		delete(parent.Component.BottomBoundary, id)
	}
	delete(s.byName, n.Name)
	n.State = types.Deleted

	if t, ok := s.instances[id]; ok {
		members := t.Members()
		s.reclaimCount[id] = len(members)
		for _, inst := range members {
			inst.State = types.Deleted
			s.reclaimer.Enqueue(id, inst)
		}
		delete(s.instances, id)
	}
	return nil
}

// freeIfOrphaned decrements id's outstanding-instance count and frees
// its arena slot once the last instance has drained. Called by the
// reclaimer with the store lock held.
func (s *Store) freeIfOrphaned(id NodeID) {
	s.reclaimCount[id]--
	if s.reclaimCount[id] <= 0 {
		delete(s.reclaimCount, id)
		s.freeLocked(id)
	}
}

func (s *Store) unlink(a, b NodeID) {
	if na, ok := s.lookupNode(a); ok {
		na.ParentDepend = removeID(na.ParentDepend, b)
		na.ChildDepend = removeID(na.ChildDepend, b)
	}
	if nb, ok := s.lookupNode(b); ok {
		nb.ParentDepend = removeID(nb.ParentDepend, a)
		nb.ChildDepend = removeID(nb.ChildDepend, a)
	}
}

func removeID(list []NodeID, target NodeID) []NodeID {
	out := list[:0]
	for _, x := range list {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}

// freeLocked physically releases an arena slot, invoked only by the
// reclaimer once an instance's in-use count has reached zero.
func (s *Store) freeLocked(id NodeID) {
	n, ok := s.lookupNode(id)
	if !ok {
		return
	}
	n.gen++
	s.arena[id.index] = nil
	s.free = append(s.free, id.index)
}

// Lock/Unlock expose the graph lock for callers (scheduler, sequencer)
// that must hold it across several Store calls atomically — the Go
// stand-in for the original's nestable recursive lock: internal code
// never calls a public (locking) method while already holding the
// lock, so there is no self-deadlock to guard against explicitly.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }
