package rci

import (
	"testing"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

func setup(t *testing.T) (*graph.Store, *Engine) {
	t.Helper()
	s := graph.NewStore(types.NewConfig())
	return s, NewEngine(s)
}

func fail(s *graph.Store, id graph.NodeID) {
	inst, _ := s.InstanceByName(id, "")
	inst.LastResult = types.Fail
}

func TestOnFail_LeafBecomesRootCause(t *testing.T) {
	s, e := setup(t)
	leaf, _ := s.GetOrCreate("leaf", types.KindRule)
	fail(s, leaf.ID)

	e.OnFail(leaf.ID, "")

	inst, _ := s.InstanceByName(leaf.ID, "")
	if inst.RCIClass != types.RootCause {
		t.Errorf("expected leaf to become RootCause, got %v", inst.RCIClass)
	}
}

func TestOnFail_NonLeafMarksChildrenCandidate(t *testing.T) {
	s, e := setup(t)
	parent, _ := s.GetOrCreate("parent", types.KindRule)
	child, _ := s.GetOrCreate("child", types.KindRule)
	s.CreateDepend(parent.ID, child.ID)
	fail(s, parent.ID)

	e.OnFail(parent.ID, "")

	pinst, _ := s.InstanceByName(parent.ID, "")
	cinst, _ := s.InstanceByName(child.ID, "")
	if pinst.RCIClass == types.RootCause {
		t.Error("expected parent with an enabled child not to become RootCause directly")
	}
	if cinst.RCIClass != types.Candidate {
		t.Errorf("expected child marked Candidate, got %v", cinst.RCIClass)
	}
}

func TestDetermineIfRootCause_AllChildrenPassing(t *testing.T) {
	s, e := setup(t)
	parent, _ := s.GetOrCreate("parent", types.KindRule)
	child, _ := s.GetOrCreate("child", types.KindRule)
	s.CreateDepend(parent.ID, child.ID)
	fail(s, parent.ID)
	cinst, _ := s.InstanceByName(child.ID, "")
	cinst.LastResult = types.Pass
	cinst.RCIClass = types.Candidate

	e.determineIfRootCause(parent.ID, "")
	pinst, _ := s.InstanceByName(parent.ID, "")
	if pinst.RCIClass == types.RootCause {
		t.Error("expected deferral while a child is still Candidate")
	}

	cinst.RCIClass = types.NotRootCause
	e.determineIfRootCause(parent.ID, "")
	if pinst.RCIClass != types.RootCause {
		t.Errorf("expected RootCause once all children pass and none Candidate, got %v", pinst.RCIClass)
	}
}

func TestOnAbort_ThreeConsecutiveReleasesCandidate(t *testing.T) {
	s, e := setup(t)
	r, _ := s.GetOrCreate("r", types.KindRule)
	inst, _ := s.InstanceByName(r.ID, "")
	inst.RCIClass = types.Candidate
	inst.LastResult = types.Fail

	e.OnAbort(r.ID, "")
	e.OnAbort(r.ID, "")
	if inst.RCIClass != types.Candidate {
		t.Fatal("expected Candidate to survive fewer than 3 aborts")
	}
	e.OnAbort(r.ID, "")
	if inst.RCIClass == types.Candidate {
		t.Error("expected 3 consecutive aborts to release Candidate as if passed")
	}
}

func TestOnPass_ClearsRootCause(t *testing.T) {
	s, e := setup(t)
	r, _ := s.GetOrCreate("r", types.KindRule)
	inst, _ := s.InstanceByName(r.ID, "")
	inst.RCIClass = types.RootCause

	e.OnPass(r.ID, "")
	if inst.RCIClass != types.NotRootCause {
		t.Errorf("expected OnPass to clear RootCause, got %v", inst.RCIClass)
	}
}
