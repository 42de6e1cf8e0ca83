// Package health implements the health aggregator (C8, §4.8): the
// per-component health/confidence scoring that reacts to rule state
// transitions and propagates up the component containment tree.
package health

import (
	"time"

	"github.com/swdiag/core/graph"
	"github.com/swdiag/core/types"
)

const (
	minHealth = 0
	maxHealth = 1000
)

// Aggregator tracks the severity table and fast-tier period the
// confidence-convergence formula (Open Question 3) is defined against.
type Aggregator struct {
	store      *graph.Store
	severities types.SeverityTable
	fastPeriod time.Duration

	// NotifyInterested delivers a component's new health value, as a
	// synthetic Value observation, to one subscribed test (§4.8
	// "Subscribed tests ... receive the new health value as a synthetic
	// Value notification so rules can alarm on it"). Wired by sequencer
	// to graph/rci-free of Aggregator importing sequencer back.
	NotifyInterested func(testID graph.NodeID, health int)

	// HealthChanged fires when a component's health crosses its
	// configured threshold (§4.9 "component_health_changed"). Wired by
	// sequencer to notify.Notifier.Emit.
	HealthChanged func(componentID graph.NodeID, name string, health int)
}

func NewAggregator(store *graph.Store, cfg types.Config) *Aggregator {
	return &Aggregator{store: store, severities: cfg.Severities, fastPeriod: cfg.FastPeriod}
}

// OnTransition applies a rule's Pass↔Fail state transition to every
// enclosing component's health (§4.8): "On every rule state transition,
// severity ... is subtracted/added to each enclosing component's
// health, clamped at [0, 1000]." Same-state repeats must not reach this
// (the caller only invokes OnTransition on an actual transition).
func (a *Aggregator) OnTransition(componentID graph.NodeID, sev types.Severity, wentFailing bool) {
	weight := a.severities.Weight(sev)
	delta := -weight
	if !wentFailing {
		delta = weight
	}
	a.applyDelta(componentID, sev, wentFailing, delta)
}

func (a *Aggregator) applyDelta(id graph.NodeID, sev types.Severity, wentFailing bool, delta int) {
	for id.Valid() {
		n, ok := a.store.Node(id)
		if !ok || n.Component == nil {
			return
		}
		c := n.Component

		if wentFailing {
			c.SeverityTally[sev]++
		} else if c.SeverityTally[sev] > 0 {
			c.SeverityTally[sev]--
		}

		prevHealth := c.Health
		c.Health = clamp(c.Health+delta, minHealth, maxHealth)
		if c.Health < c.Confidence {
			c.Confidence = c.Health
		}

		a.notifyHealthChange(n, c, prevHealth)

		id = n.Parent
	}
}

// notifyHealthChange implements the two §4.8/§4.9 health-change fan-outs
// once a component's Health has actually moved: subscribed tests get the
// new value as a synthetic Value observation, and a threshold crossing
// emits component_health_changed.
func (a *Aggregator) notifyHealthChange(n *graph.Node, c *graph.ComponentBody, prevHealth int) {
	if c.Health == prevHealth {
		return
	}
	if a.NotifyInterested != nil {
		for _, testID := range c.InterestedTests {
			a.NotifyInterested(testID, c.Health)
		}
	}
	if a.HealthChanged != nil && c.Threshold > 0 {
		crossedUp := prevHealth < c.Threshold && c.Health >= c.Threshold
		crossedDown := prevHealth >= c.Threshold && c.Health < c.Threshold
		if crossedUp || crossedDown {
			a.HealthChanged(n.ID, n.Name, c.Health)
		}
	}
}

// Converge runs one fast-tier confidence-recovery tick (§4.8): when
// confidence trails health, it rises by
// Δ ≈ (health − confidence) / (3600s / fast_period_s), then is capped
// by the minimum confidence among sub-components (Open Question 3,
// preserved as specified).
func (a *Aggregator) Converge(id graph.NodeID) {
	n, ok := a.store.Node(id)
	if !ok || n.Component == nil {
		return
	}
	c := n.Component
	if c.Confidence < c.Health {
		steps := convergenceSteps(a.fastPeriod)
		delta := (c.Health - c.Confidence) / steps
		if delta < 1 {
			delta = 1
		}
		c.Confidence = clamp(c.Confidence+delta, minHealth, c.Health)
	}

	minSub := c.Confidence
	for _, subID := range c.Components {
		sub, ok := a.store.Node(subID)
		if !ok || sub.Component == nil {
			continue
		}
		if sub.Component.Confidence < minSub {
			minSub = sub.Component.Confidence
		}
	}
	if minSub < c.Confidence {
		c.Confidence = minSub
	}
}

// ConvergeAll runs one fast-tier confidence-recovery tick (§4.8) across
// every component in the graph, system component included. Engine.Start
// calls this on a ticker paced by Config.FastPeriod (Open Question 3).
func (a *Aggregator) ConvergeAll() {
	// Iterate holds the store lock while visiting and Converge takes it,
	// so the ids are collected first and converged afterwards.
	ids := []graph.NodeID{a.store.System()}
	a.store.Iterate(graph.RelComponent, graph.NodeID{}, func(id graph.NodeID) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		a.Converge(id)
	}
}

func convergenceSteps(fastPeriod time.Duration) int {
	if fastPeriod <= 0 {
		fastPeriod = types.PeriodFast
	}
	steps := int(time.Hour / fastPeriod)
	if steps < 1 {
		steps = 1
	}
	return steps
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Health/Confidence are the read-side getters for §6 "health getters".
func (a *Aggregator) Health(id graph.NodeID) int {
	n, ok := a.store.Node(id)
	if !ok || n.Component == nil {
		return 0
	}
	return n.Component.Health
}

func (a *Aggregator) Confidence(id graph.NodeID) int {
	n, ok := a.store.Node(id)
	if !ok || n.Component == nil {
		return 0
	}
	return n.Component.Confidence
}
