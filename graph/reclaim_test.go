package graph

import (
	"testing"

	"github.com/swdiag/core/types"
)

func TestReclaimer_SweepFreesDrainedInstance(t *testing.T) {
	s := newTestStore()
	n, _ := s.GetOrCreate("r", types.KindTest)
	id := n.ID

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if remaining := s.reclaimer.sweep(); remaining != 0 {
		t.Errorf("expected sweep to drain fully, %d still busy", remaining)
	}
	if _, ok := s.lookupNode(id); ok {
		t.Error("expected arena slot to be freed after sweep")
	}
}

func TestReclaimer_SweepRequeuesWhileInUse(t *testing.T) {
	s := newTestStore()
	n, _ := s.GetOrCreate("r", types.KindTest)
	id := n.ID

	inst, _ := s.InstanceByName(id, "")
	inst.Retain()

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if remaining := s.reclaimer.sweep(); remaining != 1 {
		t.Errorf("expected 1 entry still busy while retained, got %d", remaining)
	}
	if _, ok := s.lookupNode(id); !ok {
		t.Error("node should still be present while its instance is in use")
	}

	inst.Release()
	if remaining := s.reclaimer.sweep(); remaining != 0 {
		t.Errorf("expected sweep to drain after release, %d still busy", remaining)
	}
}

func TestBitRing_CountFails(t *testing.T) {
	r := NewBitRing(4)
	r.Push(true)
	r.Push(false)
	r.Push(true)
	r.Push(true)
	if got := r.CountFails(); got != 3 {
		t.Errorf("expected 3 fails, got %d", got)
	}
	// wraps around, overwriting the oldest entry
	r.Push(false)
	if got := r.CountFails(); got != 2 {
		t.Errorf("expected 2 fails after wraparound, got %d", got)
	}
}
