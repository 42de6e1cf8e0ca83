package cli

import (
	"testing"
	"time"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

func newTestService(t *testing.T) (*Service, *graph.Store) {
	t.Helper()
	s := graph.NewStore(types.NewConfig())
	return NewService(s, types.NewConfig()), s
}

func TestGetInfoHandle_SingleNode(t *testing.T) {
	svc, store := newTestService(t)
	store.GetOrCreate("r1", types.KindRule)

	handle, err := svc.GetInfoHandle("r1", types.KindNone, "")
	if err != nil {
		t.Fatalf("GetInfoHandle: %v", err)
	}
	page, err := svc.GetInfo(handle, 10)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 element, got %d", len(page))
	}
	if page[0]["Name"] != "r1" {
		t.Errorf("expected snapshot name r1, got %v", page[0]["Name"])
	}
}

func TestGetInfo_Paginates(t *testing.T) {
	svc, store := newTestService(t)
	comp, _ := store.GetOrCreate("comp", types.KindComponent)
	for i := 0; i < 5; i++ {
		child, _ := store.GetOrCreate(string(rune('a'+i)), types.KindTest)
		store.LinkIntoComponent(comp.ID, child.ID)
	}

	handle, err := svc.GetInfoHandle("comp", types.KindComponent, "")
	if err != nil {
		t.Fatalf("GetInfoHandle: %v", err)
	}
	first, _ := svc.GetInfo(handle, 2)
	if len(first) != 2 {
		t.Fatalf("expected first page of 2, got %d", len(first))
	}
	second, _ := svc.GetInfo(handle, 10)
	if len(second) != 3 {
		t.Fatalf("expected remaining 3, got %d", len(second))
	}
}

func TestGC_RemovesStaleHandles(t *testing.T) {
	svc, store := newTestService(t)
	store.GetOrCreate("r1", types.KindRule)
	handle, _ := svc.GetInfoHandle("r1", types.KindNone, "")
	svc.ttl = time.Millisecond

	time.Sleep(5 * time.Millisecond)
	removed := svc.GC(time.Now())
	if removed != 1 {
		t.Errorf("expected 1 handle removed, got %d", removed)
	}
	if _, err := svc.GetInfo(handle, 10); err == nil {
		t.Error("expected GetInfo on GC'd handle to fail")
	}
}
