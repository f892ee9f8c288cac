// Package advance implements the MPC session advancement engine of
// SPEC_FULL.md §4.4: given a session's buffered round messages, it
// either produces the next round's outgoing message or finalizes the
// session, dispatching on session.Protocol via a closed tagged union
// rather than a trait-with-vtable (spec.md §9 Design Note).
//
// The cryptographic primitives of the MPC protocols themselves are
// explicitly out of scope (spec.md §1, "treated as external
// collaborators"); this package implements the round-advancement
// control flow — malicious-party exclusion, threshold checks,
// deterministic RNG derivation, and output chunking — around a small
// pluggable Primitive boundary a real threshold-crypto backend wires
// into.
package advance

import (
	"io"

	"github.com/luxfi/log"

	"github.com/luxfi/dwallet-consensus/mpcsession"
)

// OutcomeKind distinguishes a mid-protocol round message from a
// terminal session result, per spec.md §4.4's output contract.
type OutcomeKind uint8

const (
	OutcomeAdvance OutcomeKind = iota
	OutcomeFinalize
)

// OutputSlice is one chunk of a (possibly multi-slice) finalized
// output, tagged per spec.md §4.4's "(session id, key id, is_last,
// supported_curves, rejected?)". Non-chunked protocols finalize with
// exactly one slice with IsLast=true.
type OutputSlice struct {
	KeyID           [32]byte
	Bytes           []byte
	IsLast          bool
	SupportedCurves []uint32
	Rejected        bool
}

// Outcome is the tagged-union result of one Engine.Advance call.
type Outcome struct {
	Kind             OutcomeKind
	MaliciousParties []uint16

	// MessageBytes is set only for OutcomeAdvance: the message to
	// broadcast for the next round.
	MessageBytes []byte

	// Slices and PrivateOutput are set only for OutcomeFinalize.
	Slices        []OutputSlice
	PrivateOutput []byte
}

// Input is everything one Advancer needs to run a single round,
// assembled by Engine from session state plus the derived RNG.
type Input struct {
	Session      *mpcsession.Session
	PartyID      uint16
	Access       mpcsession.AccessStructure
	Messages     map[uint16][]byte // this round's messages, malicious parties already excluded
	EncryptionKeys map[uint16][]byte // party id -> encryption key, for share verification
	Logger       log.Logger
	RNG          io.Reader
}

// Advancer runs one round of a single protocol kind.
type Advancer interface {
	Advance(in Input) (Outcome, error)
}

// Primitive is the pluggable boundary real threshold-cryptography
// plugs into: combining a round's messages (and the round's
// deterministic RNG stream) into this protocol's output bytes. The
// default implementation is a deterministic placeholder suitable for
// exercising the control flow and tests around it; it is not
// cryptographically meaningful, matching the explicit scope
// exclusion of spec.md §1.
type Primitive interface {
	Combine(rng io.Reader, messages map[uint16][]byte) ([]byte, error)
	// Share returns a party-private output derived from the same
	// inputs, used as the session's PrivateOutput on finalize.
	Share(rng io.Reader, messages map[uint16][]byte) ([]byte, error)
}
