package graph

import (
	"sync/atomic"

	"github.com/swdiag/core/types"
)

// Instance is a per-(Node, instance-name) runtime record (§3.1
// "Instance"). Every node owns a head-sentinel primary instance (Name
// == ""); additional named instances fan out from it and share the
// node's wiring but carry independent state.
type Instance struct {
	Node NodeID
	Name string // "" for the primary

	State        types.State
	DefaultState types.State
	CLIState     types.State

	LastResult       types.Result
	LastScalar       int64
	ConsecutiveCount int64
	FailCount        int64

	RCIClass  types.RCIClass
	ActionRan bool // latched: action already ran for this RootCause streak

	History *History

	next, prev *Instance // sibling chain off the primary

	inUse int32 // bumped before a reader dereferences, per §4.3/§5
}

// Retain/Release implement the in-use protocol described in §4.3: a
// reader bumps in_use before dereferencing an instance pointer and
// decrements it after the graph lock is reacquired, so the reclaimer
// cannot free an instance out from under an in-flight reader.
func (in *Instance) Retain() { atomic.AddInt32(&in.inUse, 1) }
func (in *Instance) Release() { atomic.AddInt32(&in.inUse, -1) }
func (in *Instance) inUseCount() int32 { return atomic.LoadInt32(&in.inUse) }

// instanceTable is the per-node fan-out described in §3.1/C2: a primary
// instance plus a doubly-linked list of named members.
type instanceTable struct {
	primary *Instance
	byName  map[string]*Instance // member lookup, name != ""
}

func newInstanceTable(node NodeID) *instanceTable {
	primary := &Instance{
		Node:         node,
		State:        types.Created,
		DefaultState: types.Enabled,
		CLIState:     types.Enabled,
		History:      &History{},
	}
	return &instanceTable{primary: primary, byName: map[string]*Instance{}}
}

// ByName returns the primary when name is empty, else the named member
// (§4.2). ok is false if a named lookup misses.
func (t *instanceTable) ByName(name string) (*Instance, bool) {
	if name == "" {
		return t.primary, true
	}
	in, ok := t.byName[name]
	return in, ok
}

// CreateMember adds a named instance, failing if one by that name
// already exists (§4.2).
func (t *instanceTable) CreateMember(name string) (*Instance, error) {
	if name == "" {
		return t.primary, nil
	}
	if _, exists := t.byName[name]; exists {
		return nil, types.NewEngineError(types.ErrInvalidArgument, name, nil)
	}
	in := &Instance{
		Node:         t.primary.Node,
		Name:         name,
		State:        types.Created,
		DefaultState: types.Enabled,
		CLIState:     types.Enabled,
		History:      &History{},
	}
	in.prev = t.primary
	in.next = t.primary.next
	if t.primary.next != nil {
		t.primary.next.prev = in
	}
	t.primary.next = in
	t.byName[name] = in
	return in, nil
}

// DeleteMember detaches a named instance from the list; the caller is
// responsible for enqueueing it on the reclaimer (§4.2/§4.3).
func (t *instanceTable) DeleteMember(name string) (*Instance, bool) {
	in, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	if in.prev != nil {
		in.prev.next = in.next
	}
	if in.next != nil {
		in.next.prev = in.prev
	}
	delete(t.byName, name)
	in.State = types.Deleted
	return in, true
}

// Members iterates every instance (primary first, then named members).
func (t *instanceTable) Members() []*Instance {
	out := []*Instance{t.primary}
	for in := t.primary.next; in != nil; in = in.next {
		out = append(out, in)
	}
	return out
}

// RecordResult applies an observation to a (possibly member) instance
// and, per §4.2, folds it into the primary: "the primary shows Fail if
// any member fails, else Pass."
func (t *instanceTable) RecordResult(target *Instance, obs types.Observation) {
	target.LastResult = obs.Result
	if obs.Result == types.Value {
		target.LastScalar = obs.Scalar
	}
	switch obs.Result {
	case types.Fail:
		target.ConsecutiveCount++
		target.FailCount++
	case types.Pass:
		target.ConsecutiveCount = 0
	}

	if target == t.primary {
		return
	}
	anyFail := false
	for _, m := range t.Members() {
		if m == t.primary {
			continue
		}
		if m.LastResult == types.Fail {
			anyFail = true
			break
		}
	}
	if anyFail {
		t.primary.LastResult = types.Fail
	} else {
		t.primary.LastResult = types.Pass
	}
}
