package graph

import (
	"testing"

	"github.com/swdiag/core/types"
)

func TestCreateDepend_SimpleLink(t *testing.T) {
	s := newTestStore()
	p, _ := s.GetOrCreate("p", types.KindRule)
	c, _ := s.GetOrCreate("c", types.KindRule)

	ok, err := s.CreateDepend(p.ID, c.ID)
	if err != nil {
		t.Fatalf("CreateDepend: %v", err)
	}
	if !ok {
		t.Fatal("expected new link to report ok=true")
	}
	if !containsID(p.ChildDepend, c.ID) {
		t.Error("expected p.ChildDepend to contain c")
	}
	if !containsID(c.ParentDepend, p.ID) {
		t.Error("expected c.ParentDepend to contain p")
	}
	if p.Domain == noDomain || p.Domain != c.Domain {
		t.Errorf("expected both nodes coloured the same fresh domain, got %v/%v", p.Domain, c.Domain)
	}
}

func TestCreateDepend_Duplicate(t *testing.T) {
	s := newTestStore()
	p, _ := s.GetOrCreate("p", types.KindRule)
	c, _ := s.GetOrCreate("c", types.KindRule)
	s.CreateDepend(p.ID, c.ID)

	ok, err := s.CreateDepend(p.ID, c.ID)
	if err != nil {
		t.Fatalf("unexpected error on duplicate link: %v", err)
	}
	if ok {
		t.Error("expected duplicate link to report ok=false")
	}
}

func TestCreateDepend_RejectsDirectCycle(t *testing.T) {
	s := newTestStore()
	a, _ := s.GetOrCreate("a", types.KindRule)
	b, _ := s.GetOrCreate("b", types.KindRule)

	if _, err := s.CreateDepend(a.ID, b.ID); err != nil {
		t.Fatalf("CreateDepend a->b: %v", err)
	}
	_, err := s.CreateDepend(b.ID, a.ID)
	if err == nil {
		t.Fatal("expected cycle rejection for b->a after a->b")
	}
	ee, ok := err.(*types.EngineError)
	if !ok || ee.Kind != types.ErrCycleDetected {
		t.Errorf("expected CycleDetected, got %v", err)
	}
}

func TestCreateDepend_RejectsTransitiveCycle(t *testing.T) {
	s := newTestStore()
	a, _ := s.GetOrCreate("a", types.KindRule)
	b, _ := s.GetOrCreate("b", types.KindRule)
	c, _ := s.GetOrCreate("c", types.KindRule)

	if _, err := s.CreateDepend(a.ID, b.ID); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if _, err := s.CreateDepend(b.ID, c.ID); err != nil {
		t.Fatalf("b->c: %v", err)
	}
	_, err := s.CreateDepend(c.ID, a.ID)
	if err == nil {
		t.Fatal("expected cycle rejection for c->a closing a->b->c")
	}
}

func TestCreateDepend_WrongType(t *testing.T) {
	s := newTestStore()
	test, _ := s.GetOrCreate("t", types.KindTest)
	rule, _ := s.GetOrCreate("r", types.KindRule)

	_, err := s.CreateDepend(test.ID, rule.ID)
	if err == nil {
		t.Fatal("expected WrongType error linking a Test into the dependency DAG")
	}
	ee, ok := err.(*types.EngineError)
	if !ok || ee.Kind != types.ErrWrongType {
		t.Errorf("expected WrongType, got %v", err)
	}
}
