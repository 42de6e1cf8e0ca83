package graph

import (
	"context"
	"sync"
	"time"

	"github.com/swdiag/core/types"
)

// reclaimEntry is one instance awaiting physical release (§4.3).
type reclaimEntry struct {
	node NodeID
	inst *Instance
}

// Reclaimer is the deferred reclaimer (C3): deletion only marks an
// instance Deleted and queues it here; a background sweep frees the
// arena slot once the instance's in-use count has drained to zero,
// so a reader that retained the pointer just before deletion never
// dereferences freed memory (§4.3).
//
// Folded into the graph package rather than split out on its own: it
// needs direct access to Store's arena/free-list bookkeeping, and has
// no public surface an embedder calls directly.
type Reclaimer struct {
	store *Store
	cfg   types.Config

	mu      sync.Mutex
	pending []reclaimEntry

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReclaimer(s *Store, cfg types.Config) *Reclaimer {
	return &Reclaimer{store: s, cfg: cfg}
}

// Enqueue adds an instance to the pending-reclaim list. Caller must
// already hold the store lock (called from Store.deleteLocked).
func (r *Reclaimer) Enqueue(node NodeID, inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, reclaimEntry{node: node, inst: inst})
}

// Start launches the background sweep goroutine; Stop cancels it.
// Safe to call at most once per Reclaimer.
func (r *Reclaimer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

func (r *Reclaimer) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Reclaimer) run(ctx context.Context) {
	defer close(r.done)
	interval := r.cfg.ReclaimInterval
	if interval <= 0 {
		interval = 12 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining := r.sweep()
			if remaining > 0 {
				ticker.Reset(r.backoff())
			} else {
				ticker.Reset(interval)
			}
		}
	}
}

func (r *Reclaimer) backoff() time.Duration {
	if r.cfg.ReclaimBackoff > 0 {
		return r.cfg.ReclaimBackoff
	}
	return 5 * time.Second
}

// sweep drains every entry whose in-use count has reached zero,
// returning how many entries are still waiting on an in-flight reader.
func (r *Reclaimer) sweep() int {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	var stillBusy []reclaimEntry
	r.store.Lock()
	for _, e := range batch {
		if e.inst.inUseCount() > 0 {
			stillBusy = append(stillBusy, e)
			continue
		}
		if r.store.hooks.BeforeReclaim != nil {
			if n, ok := r.store.lookupNode(e.node); ok {
				r.store.hooks.BeforeReclaim(n, e.inst)
			}
		}
		r.store.freeIfOrphaned(e.node)
	}
	r.store.Unlock()

	if len(stillBusy) > 0 {
		r.mu.Lock()
		r.pending = append(r.pending, stillBusy...)
		r.mu.Unlock()
	}
	return len(stillBusy)
}
