// Package scheduler implements the tiered polling scheduler (C4, §4.4):
// five FIFOs (Immediate/Fast/Normal/Slow/User), a dispatch loop that
// sleeps until the earliest due entry, and a bounded worker pool that
// actually invokes test/action callbacks so the dispatch loop itself
// never blocks on user code.
package scheduler

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

// Job is one scheduled unit: a test instance due for a poll.
type Job struct {
	Test         graph.NodeID
	InstanceName string
	NextTime     time.Time
	Period       time.Duration
	Tier         types.QueueTier
}

// Run is supplied by the embedder/engine facade: invoking a test's
// function and publishing its Observation back into the graph. The
// scheduler never calls a TestFunc directly (§4.4 "The scheduler never
// invokes the test function directly").
type Run func(ctx context.Context, job Job)

type queue struct {
	items *list.List // of *Job, FIFO: back = newest
	index map[jobKey]*list.Element
}

type jobKey struct {
	test graph.NodeID
	inst string
}

func newQueue() *queue {
	return &queue{items: list.New(), index: map[jobKey]*list.Element{}}
}

func (q *queue) push(j *Job) {
	el := q.items.PushBack(j)
	q.index[jobKey{j.Test, j.InstanceName}] = el
}

func (q *queue) remove(test graph.NodeID, inst string) bool {
	key := jobKey{test, inst}
	el, ok := q.index[key]
	if !ok {
		return false
	}
	q.items.Remove(el)
	delete(q.index, key)
	return true
}

func (q *queue) peekFront() *Job {
	if q.items.Len() == 0 {
		return nil
	}
	return q.items.Front().Value.(*Job)
}

func (q *queue) popFront() *Job {
	el := q.items.Front()
	if el == nil {
		return nil
	}
	q.items.Remove(el)
	j := el.Value.(*Job)
	delete(q.index, jobKey{j.Test, j.InstanceName})
	return j
}

// tierOrder is the cross-queue tie-break order (§4.4 "Ordering and
// fairness"): "ties broken Immediate < Fast < Normal < Slow < User".
var tierOrder = []types.QueueTier{
	types.TierImmediate, types.TierFast, types.TierNormal, types.TierSlow, types.TierUser,
}

// Scheduler owns the five tiered FIFOs and the dispatch/worker loop.
type Scheduler struct {
	cfg types.Config
	run Run

	mu     sync.Mutex
	queues map[types.QueueTier]*queue

	wake chan struct{}
	sem  chan struct{} // bounds worker pool (§5)

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg types.Config, run Run) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		run:    run,
		queues: map[types.QueueTier]*queue{},
		wake:   make(chan struct{}, 1),
		sem:    make(chan struct{}, cfg.WorkerCount),
	}
	for _, t := range tierOrder {
		s.queues[t] = newQueue()
	}
	return s
}

// tierFor maps a configured period to a queue per §4.4 "Placement":
// known tiered constants route to their tier, anything else to User.
func tierFor(period time.Duration) types.QueueTier {
	switch period {
	case types.PeriodFast:
		return types.TierFast
	case types.PeriodNormal:
		return types.TierNormal
	case types.PeriodSlow:
		return types.TierSlow
	default:
		return types.TierUser
	}
}

// Add places an instance on the queue its period selects. If already
// queued on that tier it is left alone unless force, which removes and
// re-adds with next_time = now + period (§4.4 "Placement").
func (s *Scheduler) Add(test graph.NodeID, instanceName string, period time.Duration, force bool) {
	tier := tierFor(period)
	s.mu.Lock()
	q := s.queues[tier]
	if !force {
		if _, already := q.index[jobKey{test, instanceName}]; already {
			s.mu.Unlock()
			return
		}
	} else {
		q.remove(test, instanceName)
	}
	q.push(&Job{Test: test, InstanceName: instanceName, NextTime: time.Now().Add(period), Period: period, Tier: tier})
	s.mu.Unlock()
	s.Wake()
}

// Remove deletes an instance from whichever queue it occupies.
func (s *Scheduler) Remove(test graph.NodeID, instanceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tierOrder {
		if s.queues[t].remove(test, instanceName) {
			return
		}
	}
}

// Immediate enqueues on the Immediate tier and wakes the dispatch loop
// (§4.4 "Immediate path").
func (s *Scheduler) Immediate(test graph.NodeID, instanceName string) {
	s.mu.Lock()
	s.queues[types.TierImmediate].push(&Job{
		Test: test, InstanceName: instanceName, NextTime: time.Now(), Tier: types.TierImmediate,
	})
	s.mu.Unlock()
	s.Wake()
}

func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// loop sleeps until the earliest due head across all tiers, pops it,
// and dispatches to the worker pool (§4.4 "Dispatch").
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		wait := s.nextWait()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
		s.dispatchDue(ctx)
	}
}

// nextWait returns how long until the earliest queue head is due,
// applying the tie-break order on exact ties.
func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest *Job
	for _, t := range tierOrder {
		j := s.queues[t].peekFront()
		if j == nil {
			continue
		}
		if earliest == nil || j.NextTime.Before(earliest.NextTime) {
			earliest = j
		}
	}
	if earliest == nil {
		return time.Hour
	}
	d := time.Until(earliest.NextTime)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := time.Now()
	for {
		job := s.popOneDue(now)
		if job == nil {
			return
		}
		s.dispatch(ctx, job)
	}
}

func (s *Scheduler) popOneDue(now time.Time) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tierOrder {
		q := s.queues[t]
		if head := q.peekFront(); head != nil && !head.NextTime.After(now) {
			return q.popFront()
		}
	}
	return nil
}

// dispatch submits a due job to the bounded worker pool (§5 "a bounded
// worker pool"), then re-queues it at its period if it is polled
// (§4.4 "After dispatch ... the scheduler re-inserts the instance").
func (s *Scheduler) dispatch(ctx context.Context, job *Job) {
	s.sem <- struct{}{}
	go func() {
		defer func() { <-s.sem }()
		s.run(ctx, *job)
		if job.Tier != types.TierImmediate && job.Period > 0 {
			s.Add(job.Test, job.InstanceName, job.Period, true)
		}
	}()
}
