// Package epoch defines the epoch identifier and the read-only
// "EpochContext" capability sessions hold instead of a back-reference
// to the epoch's tables, keeping the session <-> committee <-> tables
// graph acyclic per SPEC_FULL.md §9 / spec.md Design Notes.
package epoch

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/dwallet-consensus/committee"
)

// ID is the monotonically increasing epoch identifier.
type ID uint64

// Context is the read-only capability an MPC session is given: the
// current committee, its party-id mapping, and nothing else. Sessions
// never write tables directly — only the consensus handler does.
type Context struct {
	Epoch     ID
	Committee *committee.Committee
}

// PartyID is a convenience accessor matching the shape sessions need
// most often when dispatching the advancement engine.
func (c Context) PartyID(authority ids.NodeID) (uint16, bool) {
	return c.Committee.PartyID(authority)
}
