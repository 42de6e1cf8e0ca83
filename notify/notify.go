// Package notify implements the notifier (C9, §4.9): best-effort,
// state-change-only event delivery to in-process subscribers and an
// optional MQTT sink for out-of-process collaborators.
package notify

import (
	"github.com/swdiag/core/types"
)

// EventKind names the two event shapes §4.9 defines.
type EventKind int

const (
	ResultChanged EventKind = iota
	HealthChanged
)

// Event is what emit() hands to every sink. Owner is the test/rule/
// action/component name; InstanceName is empty for the primary.
type Event struct {
	Kind         EventKind
	Owner        string
	InstanceName string
	Result       types.Result
	Value        int64
	Health       int
}

// Sink receives emitted events. Publish must not block the caller for
// long — the notifier is best-effort and never blocks the sequencer
// (§4.9 "The notifier never blocks the sequencer; delivery is
// best-effort").
type Sink interface {
	Publish(Event)
}

// Notifier fans emitted events out to every registered Sink on its own
// goroutine per event, so a slow subscriber cannot stall the caller.
type Notifier struct {
	logger types.Logger
	sinks  []Sink
}

func New(logger types.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) Register(s Sink) {
	n.sinks = append(n.sinks, s)
}

// Emit delivers ev to every sink. The sequencer calls it for result
// changes only on nodes whose Notify flag is set, and for every health
// threshold crossing regardless of that flag.
func (n *Notifier) Emit(ev Event) {
	for _, s := range n.sinks {
		sink := s
		go func() {
			defer func() {
				if r := recover(); r != nil {
					n.logger.Errorf("notify: sink panicked: %v", r)
				}
			}()
			sink.Publish(ev)
		}()
	}
}

// ResultChangedEvent/HealthChangedEvent are small constructors matching
// the original's `emit(kind, owner_name, instance_name_opt, result,
// value)` signature (§4.9), kept separate so callers don't build an
// Event literal with irrelevant fields set.
func ResultChangedEvent(owner, instance string, result types.Result, value int64) Event {
	return Event{Kind: ResultChanged, Owner: owner, InstanceName: instance, Result: result, Value: value}
}

func HealthChangedEvent(owner string, health int) Event {
	return Event{Kind: HealthChanged, Owner: owner, Health: health}
}
