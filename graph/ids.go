// Package graph implements the object graph (C1: graph store) and the
// per-node instance table (C2): the tests, rules, actions, components,
// and instances that make up a live diagnostics session, plus the
// dependency edges between them.
//
// Nodes live in a generational arena and are referenced by NodeID
// rather than pointer (§9 "Pointer graph → arena + index"): a deleted
// node's slot is recycled, but a stale NodeID captured before deletion
// is detected via the generation check instead of producing a
// dangling-pointer read.
package graph

import "fmt"

// NodeID stably references a node in a Store's arena. The zero value
// is never a valid id (arena slot 0 is reserved), so NodeID{} doubles
// as a "no node" sentinel the way a nil pointer would in the original.
type NodeID struct {
	index uint32
	gen   uint32
}

func (id NodeID) Valid() bool { return id.index != 0 }

func (id NodeID) String() string {
	if !id.Valid() {
		return "<nil>"
	}
	return fmt.Sprintf("#%d.%d", id.index, id.gen)
}

// DomainID colors a connected region of the dependency DAG (§3.1 "Loop
// domain"). Colors are compared for equality and looked up in a
// reachability table, never dereferenced, so a UUID is as good a
// representation as an incrementing counter and sidesteps any global
// counter shared across engines in one process (§9).
type DomainID string

const noDomain DomainID = ""
