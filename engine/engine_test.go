package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/swdiag/core/notify"
	"github.com/swdiag/core/types"
)

func TestEngine_FailingLeafRuleRunsActionAndDropsHealth(t *testing.T) {
	e := New(types.NewConfig(), nil)

	if err := e.CompCreate("host"); err != nil {
		t.Fatal(err)
	}
	if err := e.TestCreatePolled("cpu-check", func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		return types.Failed()
	}, nil, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleCreate("cpu-rule", "cpu-check", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleSetType("cpu-rule", types.OpOnFail, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleSetSeverity("cpu-rule", types.SevHigh); err != nil {
		t.Fatal(err)
	}
	if err := e.CompContains("host", "cpu-rule"); err != nil {
		t.Fatal(err)
	}

	var ran bool
	if err := e.ActionCreate("alert", func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		ran = true
		return types.Passed()
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleAddAction("cpu-rule", "alert"); err != nil {
		t.Fatal(err)
	}
	if err := e.TestChainReady("cpu-check"); err != nil {
		t.Fatal(err)
	}

	e.TestNotify("cpu-check", "", types.Failed())

	if !ran {
		t.Error("expected the RootCause action to run")
	}
	health, err := e.CompHealth("host")
	if err != nil {
		t.Fatal(err)
	}
	if health != 900 {
		t.Errorf("expected health 900 after a SevHigh failure, got %d", health)
	}
}

func TestEngine_RuleDeleteAndDependCreate(t *testing.T) {
	e := New(types.NewConfig(), nil)

	if err := e.RuleCreate("parent-rule", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleCreate("child-rule", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.DependCreate("parent-rule", "child-rule"); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleDelete("child-rule"); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleDelete("does-not-exist"); err != nil {
		t.Errorf("expected rule_delete on a missing name to be tolerated, got %v", err)
	}
}

func TestEngine_EnableDisableDefault(t *testing.T) {
	e := New(types.NewConfig(), nil)
	if err := e.RuleCreate("r1", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.Disable("r1"); err != nil {
		t.Fatal(err)
	}
	n, err := e.store.GetByName("r1", types.KindRule)
	if err != nil {
		t.Fatal(err)
	}
	if n.State != types.Disabled {
		t.Errorf("expected Disabled, got %v", n.State)
	}
	if err := e.Default("r1"); err != nil {
		t.Fatal(err)
	}
	if n.State != types.Enabled {
		t.Errorf("expected Default to restore Enabled, got %v", n.State)
	}
}

func TestEngine_CompSetHealth_Clamps(t *testing.T) {
	e := New(types.NewConfig(), nil)
	if err := e.CompCreate("host"); err != nil {
		t.Fatal(err)
	}
	if err := e.CompSetHealth("host", 5000); err != nil {
		t.Fatal(err)
	}
	health, err := e.CompHealth("host")
	if err != nil {
		t.Fatal(err)
	}
	if health != 1000 {
		t.Errorf("expected health clamped to 1000, got %d", health)
	}

	if err := e.CompSetHealth("host", -5); err != nil {
		t.Fatal(err)
	}
	if health, _ := e.CompHealth("host"); health != 0 {
		t.Errorf("expected health clamped to 0, got %d", health)
	}
}

func TestEngine_CompAddInterestedTest_PublishesHealthAsSyntheticValue(t *testing.T) {
	e := New(types.NewConfig(), nil)
	if err := e.CompCreate("host"); err != nil {
		t.Fatal(err)
	}
	if err := e.TestCreateNotification("health-watch"); err != nil {
		t.Fatal(err)
	}
	if err := e.CompAddInterestedTest("host", "health-watch"); err != nil {
		t.Fatal(err)
	}

	if err := e.TestCreatePolled("cpu-check", func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		return types.Failed()
	}, nil, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleCreate("cpu-rule", "cpu-check", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleSetType("cpu-rule", types.OpOnFail, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleSetSeverity("cpu-rule", types.SevHigh); err != nil {
		t.Fatal(err)
	}
	if err := e.CompContains("host", "cpu-rule"); err != nil {
		t.Fatal(err)
	}
	if err := e.TestChainReady("cpu-check"); err != nil {
		t.Fatal(err)
	}

	e.TestNotify("cpu-check", "", types.Failed())

	n, err := e.store.GetByName("health-watch", types.KindTest)
	if err != nil {
		t.Fatal(err)
	}
	inst, ok := e.store.InstanceByName(n.ID, "")
	if !ok {
		t.Fatal("expected a primary instance for health-watch")
	}
	if inst.LastResult != types.Value {
		t.Errorf("expected health-watch to receive a synthetic Value observation, got %v", inst.LastResult)
	}
	if inst.LastScalar != 900 {
		t.Errorf("expected health-watch's scalar to carry the new health (900), got %d", inst.LastScalar)
	}
}

func TestEngine_HealthThresholdCrossing_EmitsNotification(t *testing.T) {
	e := New(types.NewConfig(), nil)
	if err := e.CompCreate("host"); err != nil {
		t.Fatal(err)
	}
	if err := e.CompSetHealthThreshold("host", 950); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	e.RegisterSink(sink)

	if err := e.TestCreatePolled("cpu-check", func(ctx context.Context, instanceName string, userCtx any) types.Observation {
		return types.Failed()
	}, nil, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleCreate("cpu-rule", "cpu-check", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleSetType("cpu-rule", types.OpOnFail, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.RuleSetSeverity("cpu-rule", types.SevHigh); err != nil {
		t.Fatal(err)
	}
	if err := e.CompContains("host", "cpu-rule"); err != nil {
		t.Fatal(err)
	}
	if err := e.TestChainReady("cpu-check"); err != nil {
		t.Fatal(err)
	}

	e.TestNotify("cpu-check", "", types.Failed())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sink.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() == 0 {
		t.Fatal("expected a component_health_changed event once health crossed the threshold")
	}
}

func TestEngine_ScheduledBuiltinAction_ReportsCompletionUnderCustomName(t *testing.T) {
	e := New(types.NewConfig(), fakeCollaborator{})
	if err := e.RegisterBuiltinAction("nightly-reload", "scheduled-reload"); err != nil {
		t.Fatal(err)
	}
	n, err := e.store.GetByName("nightly-reload", types.KindAction)
	if err != nil {
		t.Fatal(err)
	}

	obs := n.Action.Function(context.Background(), "", nil)
	if obs.Result != types.InProgress {
		t.Fatalf("expected the scheduled action to report InProgress immediately, got %v", obs.Result)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if inst, ok := e.store.InstanceByName(n.ID, ""); ok && inst.LastResult == types.Pass {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected the scheduled reload's real result to land on its own node via action_complete")
}

type fakeCollaborator struct{}

func (fakeCollaborator) Reload(ctx context.Context, target string) error        { return nil }
func (fakeCollaborator) Switchover(ctx context.Context, target string) error    { return nil }
func (fakeCollaborator) ReloadStandby(ctx context.Context, target string) error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Publish(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
