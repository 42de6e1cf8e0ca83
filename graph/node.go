package graph

import (
	"context"
	"time"

	"github.com/swdiag/core/types"
)

// MaxNameLength truncates (with a warning) any name longer than this
// (§4.1 "Naming").
const MaxNameLength = 128

// TestFunc is a polled test's body (§3.1). It receives the instance
// name the scheduler is running it for (empty for the primary) and an
// opaque context the embedder supplied at registration.
type TestFunc func(ctx context.Context, instanceName string, userCtx any) types.Observation

// ActionFunc is bound to one or more rules and runs when a rule becomes
// a RootCause (§3.1 "Action").
type ActionFunc func(ctx context.Context, instanceName string, userCtx any) types.Observation

// Header is the attribute set every node variant shares (§3.1 "Node").
// Kind-specific state lives in the Test/Rule/Action/Component pointer
// fields below — only one is non-nil for any given node, the Go
// expression of the original's tagged union.
type Header struct {
	ID    NodeID
	Name  string
	Kind  types.Kind
	Desc  string

	State        types.State
	DefaultState types.State
	CLIState     types.State

	Parent NodeID

	// ParentDepend/ChildDepend are the RCI dependency DAG edges (§3.2);
	// populated only for Rule, None (forward refs), and Component nodes.
	ParentDepend []NodeID
	ChildDepend  []NodeID

	Domain DomainID

	// PendingRef is set on a None-typed forward reference (§3.3) and
	// cleared once the node is grown into its real Kind.
	PendingRef bool

	Notify bool // §4.9: emit result/health-changed events for this node
}

// TestBody is the Test specialization (§3.1).
type TestBody struct {
	TestKind types.TestKind

	Function      TestFunc
	UserCtx       any
	Period        time.Duration
	DefaultPeriod time.Duration
	AutopassMS    time.Duration

	// PrimaryOutput is the test's one primary output rule; additional
	// rules chain off it via RuleBody.NextInInput.
	PrimaryOutput NodeID
}

// RuleBody is the Rule specialization (§3.1).
type RuleBody struct {
	Operator types.Operator
	N, M     int64
	DefaultN, DefaultM int64
	// Script holds the compiled expr-lang program for OpScript rules
	// (domain-stack addition, see SPEC_FULL.md). Declared as `any` here
	// to keep graph free of the expr-lang dependency; the rules package
	// type-asserts it back to *vm.Program.
	Script any

	Inputs  []NodeID
	Actions []NodeID

	Output      NodeID
	NextInInput NodeID

	Severity types.Severity
}

// ActionBody is the Action specialization (§3.1).
type ActionBody struct {
	Function ActionFunc
	UserCtx  any
	Rules    []NodeID // reverse list: rules referencing this action (§3.1 invariant 5)
	Builtin  bool     // pre-registered action; RCI won't rerun its tied rule on success
}

// ComponentBody is the Component specialization (§3.1).
type ComponentBody struct {
	Tests      []NodeID
	Rules      []NodeID
	Actions    []NodeID
	Components []NodeID
	None       []NodeID

	// TopBoundary/BottomBoundary are the interior nodes with no
	// parent/child dependency edge staying inside this component
	// (§4.7 "Component expansion").
	TopBoundary    map[NodeID]bool
	BottomBoundary map[NodeID]bool

	InterestedTests []NodeID // tests subscribed to this component's health (§4.9)

	SeverityTally map[types.Severity]int
	Health        int
	Confidence    int

	// Threshold is the health crossing point that triggers a
	// component_health_changed notification (§4.9); 0 disables it.
	Threshold int
}

func newComponentBody(threshold int) *ComponentBody {
	return &ComponentBody{
		TopBoundary:    map[NodeID]bool{},
		BottomBoundary: map[NodeID]bool{},
		SeverityTally:  map[types.Severity]int{},
		Health:         1000,
		Confidence:     1000,
		Threshold:      threshold,
	}
}

// Node is a single graph vertex: its shared Header plus whichever
// kind-specific body its Kind names.
type Node struct {
	Header
	Test      *TestBody
	Rule      *RuleBody
	Action    *ActionBody
	Component *ComponentBody

	gen uint32 // arena generation, bumped on delete+recycle
}
