// Package cli implements the CLI snapshot protocol (§6 "CLI handle
// protocol"): get_info_handle/get_info return opaque, pageable,
// read-only snapshots of graph state for an external front-end, rather
// than handing out live pointers a CLI thread could race the reclaimer
// on.
package cli

import (
	"sync"
	"time"

	"github.com/fatih/structs"
	"github.com/gofrs/uuid/v5"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

// snapshotElement is one serialized node/instance, built with
// fatih/structs the way the teacher already depends on it for its
// struct-centric configuration model (SPEC_FULL.md domain-stack entry).
type snapshotElement map[string]any

// Handle is a paged, read-only snapshot: its Elements are captured once
// at get_info_handle time and never mutate, so concurrent graph writes
// cannot corrupt an in-progress CLI read.
type Handle struct {
	ID       string
	Elements []snapshotElement
	pos      int

	createdAt time.Time
	lastUsed  time.Time
}

// Service owns the handle table and its garbage collector.
type Service struct {
	store *graph.Store
	ttl   time.Duration

	mu      sync.Mutex
	handles map[string]*Handle
}

func NewService(store *graph.Store, cfg types.Config) *Service {
	return &Service{store: store, ttl: cfg.HandleTTL, handles: map[string]*Handle{}}
}

// GetInfoHandle builds a snapshot of name's node (optionally scoped to
// one instance) plus, for a Component, its directly contained nodes,
// and returns an opaque handle id for pageable retrieval via GetInfo.
func (s *Service) GetInfoHandle(name string, kindFilter types.Kind, instanceName string) (string, error) {
	n, err := s.store.GetByName(name, kindFilter)
	if err != nil {
		return "", err
	}

	var elements []snapshotElement
	if n.Kind == types.KindComponent && instanceName == "" {
		for _, childList := range [][]graph.NodeID{n.Component.Tests, n.Component.Rules, n.Component.Actions, n.Component.Components} {
			for _, id := range childList {
				if child, ok := s.store.Node(id); ok {
					elements = append(elements, snapshotNode(child))
				}
			}
		}
	} else {
		elements = append(elements, snapshotNode(n))
		inst, ok := s.store.InstanceByName(n.ID, instanceName)
		if ok {
			elements[0]["instance"] = snapshotInstance(inst)
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	h := &Handle{
		ID:        id.String(),
		Elements:  elements,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}

	s.mu.Lock()
	s.handles[h.ID] = h
	s.mu.Unlock()
	return h.ID, nil
}

// GetInfo pages through a handle's elements, up to max at a time.
func (s *Service) GetInfo(handle string, max int) ([]snapshotElement, error) {
	s.mu.Lock()
	h, ok := s.handles[handle]
	if !ok {
		s.mu.Unlock()
		return nil, types.NewEngineError(types.ErrNotFound, handle, nil)
	}
	h.lastUsed = time.Now()
	s.mu.Unlock()

	if h.pos >= len(h.Elements) {
		return nil, nil
	}
	end := h.pos + max
	if end > len(h.Elements) {
		end = len(h.Elements)
	}
	page := h.Elements[h.pos:end]
	h.pos = end
	return page, nil
}

// GC removes handles unused for longer than the configured TTL (§6:
// "handles older than one half-day without use are GC'd").
func (s *Service) GC(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, h := range s.handles {
		if now.Sub(h.lastUsed) > s.ttl {
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// RunGC launches a goroutine that calls GC on a fixed interval until done
// is closed, matching the teacher's habit of a small dedicated sweep
// goroutine (engine/chain.go's dispatch loop) rather than a cron-style
// external trigger.
func (s *Service) RunGC(done <-chan struct{}, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				s.GC(now)
			}
		}
	}()
}

func snapshotNode(n *graph.Node) snapshotElement {
	type nodeView struct {
		Name  string
		Kind  string
		State string
		Desc  string
	}
	out := structs.Map(nodeView{Name: n.Name, Kind: n.Kind.String(), State: n.State.String(), Desc: n.Desc})
	return out
}

func snapshotInstance(in *graph.Instance) snapshotElement {
	type instView struct {
		Name             string
		State            string
		LastResult       string
		LastScalar       int64
		ConsecutiveCount int64
		FailCount        int64
		RCIClass         string
	}
	out := structs.Map(instView{
		Name:             in.Name,
		State:            in.State.String(),
		LastResult:       in.LastResult.String(),
		LastScalar:       in.LastScalar,
		ConsecutiveCount: in.ConsecutiveCount,
		FailCount:        in.FailCount,
		RCIClass:         in.RCIClass.String(),
	})
	return out
}
