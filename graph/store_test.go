package graph

import (
	"testing"

	"github.com/swdiag/core/types"
)

func newTestStore() *Store {
	return NewStore(types.NewConfig())
}

func TestGetOrCreate_NewNode(t *testing.T) {
	s := newTestStore()
	n, err := s.GetOrCreate("my test", types.KindTest)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if n.Name != "my_test" {
		t.Errorf("expected normalized name my_test, got %q", n.Name)
	}
	if n.Kind != types.KindTest {
		t.Errorf("expected KindTest, got %v", n.Kind)
	}
	if n.Test == nil {
		t.Fatal("expected non-nil TestBody")
	}
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	s := newTestStore()
	a, _ := s.GetOrCreate("t1", types.KindTest)
	b, _ := s.GetOrCreate("t1", types.KindTest)
	if a.ID != b.ID {
		t.Errorf("expected same node, got %v and %v", a.ID, b.ID)
	}
}

func TestGetOrCreate_GrowsNoneReference(t *testing.T) {
	s := newTestStore()
	ref, err := s.GetOrCreate("forward", types.KindNone)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	id := ref.ID

	grown, err := s.GetOrCreate("forward", types.KindRule)
	if err != nil {
		t.Fatalf("GetOrCreate (grow): %v", err)
	}
	if grown.ID != id {
		t.Errorf("growing should preserve identity: got %v, want %v", grown.ID, id)
	}
	if grown.Kind != types.KindRule || grown.Rule == nil {
		t.Errorf("expected node grown into Rule, got kind %v", grown.Kind)
	}
}

func TestGetOrCreate_NoneKindAcceptsExistingConcreteNode(t *testing.T) {
	s := newTestStore()
	want, _ := s.GetOrCreate("rule1", types.KindRule)
	got, err := s.GetOrCreate("rule1", types.KindNone)
	if err != nil {
		t.Fatalf("GetOrCreate with KindNone on an existing concrete node: %v", err)
	}
	if got.ID != want.ID || got.Kind != types.KindRule {
		t.Errorf("expected existing Rule node returned as-is, got %+v", got)
	}
}

func TestGetOrCreate_NameCollision(t *testing.T) {
	s := newTestStore()
	if _, err := s.GetOrCreate("dup", types.KindTest); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_, err := s.GetOrCreate("dup", types.KindRule)
	if err == nil {
		t.Fatal("expected NameCollision error")
	}
	ee, ok := err.(*types.EngineError)
	if !ok || ee.Kind != types.ErrInvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestGetByName_WrongType(t *testing.T) {
	s := newTestStore()
	s.GetOrCreate("r1", types.KindRule)
	_, err := s.GetByName("r1", types.KindTest)
	if err == nil {
		t.Fatal("expected BadType error")
	}
	ee, ok := err.(*types.EngineError)
	if !ok || ee.Kind != types.ErrWrongType {
		t.Errorf("expected WrongType, got %v", err)
	}
}

func TestGetByName_NotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.GetByName("nope", types.KindNone)
	if err == nil {
		t.Fatal("expected NotFound error")
	}
}

func TestNameNormalization_Truncation(t *testing.T) {
	long := make([]byte, MaxNameLength+50)
	for i := range long {
		long[i] = 'a'
	}
	s := newTestStore()
	n, err := s.GetOrCreate(string(long), types.KindTest)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(n.Name) != MaxNameLength {
		t.Errorf("expected name truncated to %d, got %d", MaxNameLength, len(n.Name))
	}
}

func TestDelete_RemovesFromIndexAndEnqueuesInstances(t *testing.T) {
	s := newTestStore()
	n, _ := s.GetOrCreate("todelete", types.KindTest)
	if err := s.Delete(n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetByName("todelete", types.KindNone); err == nil {
		t.Error("expected deleted node to be gone from name index")
	}
	got, _ := s.lookupNode(n.ID)
	if got == nil || got.State != types.Deleted {
		t.Errorf("expected node to remain in arena with Deleted state, got %v", got)
	}
}

func TestLinkIntoComponent(t *testing.T) {
	s := newTestStore()
	parent, _ := s.GetOrCreate("parent", types.KindComponent)
	child, _ := s.GetOrCreate("child", types.KindTest)

	if err := s.LinkIntoComponent(parent.ID, child.ID); err != nil {
		t.Fatalf("LinkIntoComponent: %v", err)
	}
	reread, _ := s.lookupNode(child.ID)
	if reread.Parent != parent.ID {
		t.Errorf("expected child's parent to be %v, got %v", parent.ID, reread.Parent)
	}
	found := false
	for _, id := range parent.Component.Tests {
		if id == child.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected child test listed under parent's Tests")
	}
}

func TestLinkIntoComponent_RejectsExcessiveNesting(t *testing.T) {
	cfg := types.NewConfig(types.WithDepthLimits(25, 2))
	s := NewStore(cfg)

	top, _ := s.GetOrCreate("top", types.KindComponent)
	mid, _ := s.GetOrCreate("mid", types.KindComponent)
	leaf, _ := s.GetOrCreate("leaf", types.KindComponent)

	if err := s.LinkIntoComponent(s.System(), top.ID); err != nil {
		t.Fatalf("LinkIntoComponent(system, top): %v", err)
	}
	if err := s.LinkIntoComponent(top.ID, mid.ID); err != nil {
		t.Fatalf("LinkIntoComponent(top, mid): %v", err)
	}
	if err := s.LinkIntoComponent(mid.ID, leaf.ID); err == nil {
		t.Fatal("expected DepthExceeded once MaxCompNesting is exceeded")
	}
}

func TestAddInterestedTest_SubscribesAndIsIdempotent(t *testing.T) {
	s := newTestStore()
	comp, _ := s.GetOrCreate("comp", types.KindComponent)
	test, _ := s.GetOrCreate("test", types.KindTest)

	if err := s.AddInterestedTest(comp.ID, test.ID); err != nil {
		t.Fatalf("AddInterestedTest: %v", err)
	}
	if err := s.AddInterestedTest(comp.ID, test.ID); err != nil {
		t.Fatalf("AddInterestedTest (repeat): %v", err)
	}
	if len(comp.Component.InterestedTests) != 1 {
		t.Errorf("expected exactly one subscription, got %d", len(comp.Component.InterestedTests))
	}
}
