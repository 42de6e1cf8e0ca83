package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/swdiag/core/types"
)

type fakeCollaborator struct {
	reloadErr, switchoverErr, standbyErr error
}

func (f fakeCollaborator) Reload(ctx context.Context, target string) error        { return f.reloadErr }
func (f fakeCollaborator) Switchover(ctx context.Context, target string) error    { return f.switchoverErr }
func (f fakeCollaborator) ReloadStandby(ctx context.Context, target string) error { return f.standbyErr }

func TestRegistry_AliasesScheduledSwitchoverToSwitchover(t *testing.T) {
	reg := Registry(fakeCollaborator{}, 0, nil)
	if _, ok := reg["switchover"]; !ok {
		t.Fatal("expected switchover registered")
	}
	if _, ok := reg["scheduled-switchover"]; !ok {
		t.Fatal("expected scheduled-switchover registered")
	}
}

func TestReload_PropagatesCollaboratorError(t *testing.T) {
	reg := Registry(fakeCollaborator{reloadErr: errors.New("boom")}, 0, nil)
	obs := reg["reload"](context.Background(), "target", nil)
	if obs.Result != types.Abort {
		t.Errorf("expected Abort on collaborator error, got %v", obs.Result)
	}
}

func TestNilCollaborator_AlwaysPasses(t *testing.T) {
	reg := Registry(nil, 0, nil)
	obs := reg["reload"](context.Background(), "target", nil)
	if obs.Result != types.Pass {
		t.Errorf("expected Pass with nil collaborator, got %v", obs.Result)
	}
}

func TestNoOp_AlwaysPasses(t *testing.T) {
	obs := NoOp(context.Background(), "", nil)
	if obs.Result != types.Pass {
		t.Errorf("expected Pass, got %v", obs.Result)
	}
}
