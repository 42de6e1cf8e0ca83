// Package types defines the shared contracts of the diagnostics engine:
// the result/severity vocabulary every test, rule, and action speaks,
// the pluggable Config/Logger surface, and the error kinds the engine
// can surface to an embedder.
//
// Nothing in this package touches the graph itself — it is the
// vocabulary other packages (graph, rules, rci, health, scheduler,
// sequencer) build on, mirroring how a rule-engine's "types" package
// only ever holds interfaces and message shapes, never the engine.
package types

// Result is the outcome of a test function, rule evaluation, or action
// invocation. It is a closed, stable set of integer codes so that
// callbacks across a process boundary (CLI, remote slaves) can agree on
// wire values without sharing Go types.
type Result int

const (
	// Invalid marks a Result zero value that was never actually set by
	// a test, rule, or action — distinguishing "never ran" from Pass.
	Invalid Result = iota
	Pass
	Fail
	Abort
	InProgress
	// Value carries a scalar alongside the Result; rules threshold on it.
	Value
	// Ignore tells the rule chain this observation carries no signal —
	// it neither advances counting operators nor clears them.
	Ignore
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "Pass"
	case Fail:
		return "Fail"
	case Abort:
		return "Abort"
	case InProgress:
		return "InProgress"
	case Value:
		return "Value"
	case Ignore:
		return "Ignore"
	default:
		return "Invalid"
	}
}

// Observation is what a test function or action hands back: a Result
// plus, when Result is Value, the scalar the rule operators threshold
// against.
type Observation struct {
	Result Result
	Scalar int64
}

func Passed() Observation           { return Observation{Result: Pass} }
func Failed() Observation           { return Observation{Result: Fail} }
func Aborted() Observation          { return Observation{Result: Abort} }
func Progressing() Observation      { return Observation{Result: InProgress} }
func Ignored() Observation          { return Observation{Result: Ignore} }
func ValueOf(v int64) Observation   { return Observation{Result: Value, Scalar: v} }

// Severity weights how much a failing rule subtracts from its enclosing
// components' health (§4.8). Positive is a negative weight: it is used
// by rules that represent a corrective/positive signal and therefore
// raise health instead of lowering it.
type Severity int

const (
	SevNone Severity = iota
	SevLow
	SevMedium
	SevHigh
	SevCritical
	SevCatastrophic
	SevPositive
)

func (s Severity) String() string {
	switch s {
	case SevCatastrophic:
		return "Catastrophic"
	case SevCritical:
		return "Critical"
	case SevHigh:
		return "High"
	case SevMedium:
		return "Medium"
	case SevLow:
		return "Low"
	case SevPositive:
		return "Positive"
	default:
		return "None"
	}
}

// SeverityTable maps a Severity to the integer weight subtracted from
// (or, for SevPositive, added to) a component's health on a rule's
// Pass→Fail transition. It is a field on the engine rather than a
// package-level constant map so multiple engines in one process (tests)
// can carry independent tables — see the "Global mutable state" design
// note this addresses.
type SeverityTable map[Severity]int

// DefaultSeverityTable reproduces the original engine's fixed weights.
func DefaultSeverityTable() SeverityTable {
	return SeverityTable{
		SevCatastrophic: 1000,
		SevCritical:     500,
		SevHigh:         100,
		SevMedium:       50,
		SevLow:          10,
		SevNone:         0,
		SevPositive:     -50,
	}
}

func (t SeverityTable) Weight(s Severity) int {
	if w, ok := t[s]; ok {
		return w
	}
	return 0
}
