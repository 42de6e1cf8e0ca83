package health

import (
	"testing"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

func newTestAggregator(t *testing.T) (*Aggregator, *graph.Store, graph.NodeID) {
	t.Helper()
	s := graph.NewStore(types.NewConfig())
	c, err := s.GetOrCreate("comp", types.KindComponent)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	return NewAggregator(s, types.NewConfig()), s, c.ID
}

func TestAggregator_OnTransition_SubtractsSeverityOnFail(t *testing.T) {
	a, _, id := newTestAggregator(t)
	a.OnTransition(id, types.SevHigh, true)
	if got := a.Health(id); got != 1000-100 {
		t.Errorf("expected health 900, got %d", got)
	}
}

func TestAggregator_OnTransition_RestoresOnRecovery(t *testing.T) {
	a, _, id := newTestAggregator(t)
	a.OnTransition(id, types.SevHigh, true)
	a.OnTransition(id, types.SevHigh, false)
	if got := a.Health(id); got != 1000 {
		t.Errorf("expected health restored to 1000, got %d", got)
	}
}

func TestAggregator_Health_ClampsAtZero(t *testing.T) {
	a, _, id := newTestAggregator(t)
	for i := 0; i < 5; i++ {
		a.OnTransition(id, types.SevCatastrophic, true)
	}
	if got := a.Health(id); got != 0 {
		t.Errorf("expected health clamped to 0, got %d", got)
	}
}

func TestAggregator_Confidence_CapsAtHealthOnDecrease(t *testing.T) {
	a, _, id := newTestAggregator(t)
	a.OnTransition(id, types.SevCritical, true)
	if got := a.Confidence(id); got > a.Health(id) {
		t.Errorf("expected confidence <= health, got confidence=%d health=%d", got, a.Health(id))
	}
}

func TestAggregator_Converge_RaisesConfidenceTowardHealth(t *testing.T) {
	a, _, id := newTestAggregator(t)
	a.OnTransition(id, types.SevCatastrophic, true)
	a.OnTransition(id, types.SevCatastrophic, false)
	before := a.Confidence(id)
	a.Converge(id)
	if a.Confidence(id) < before {
		t.Errorf("expected confidence to rise or hold, got %d after %d", a.Confidence(id), before)
	}
}
