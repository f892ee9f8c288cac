// Package mpcsession holds the per-session state the advancement engine
// reads and mutates: the protocol kind, the round->party->message buffer,
// and the session's public/private input. Grounded on the teacher's
// utils/bag.Bag generic (reused by the output verifier) and on the
// session lifecycle described in SPEC_FULL.md §3/§4.4.
package mpcsession

import (
	"github.com/luxfi/ids"
)

// ID is the opaque 32-byte session identifier.
type ID = ids.ID

// ProtocolKind is a closed set of MPC session kinds, dispatched on by
// the advancement engine via a tagged union rather than a
// trait-with-vtable, per SPEC_FULL.md §4.4 / spec.md §9.
type ProtocolKind uint8

const (
	ProtocolDKGRound1 ProtocolKind = iota
	ProtocolDKGRound2
	ProtocolPresign
	ProtocolSign
	ProtocolNetworkDKG
	ProtocolReconfiguration
	ProtocolImportedKeyVerification
	ProtocolEncryptedShareVerification
	ProtocolPartialSignatureVerification
	ProtocolMakeSecretPublic
)

func (p ProtocolKind) String() string {
	switch p {
	case ProtocolDKGRound1:
		return "dkg-round-1"
	case ProtocolDKGRound2:
		return "dkg-round-2"
	case ProtocolPresign:
		return "presign"
	case ProtocolSign:
		return "sign"
	case ProtocolNetworkDKG:
		return "network-dkg"
	case ProtocolReconfiguration:
		return "reconfiguration"
	case ProtocolImportedKeyVerification:
		return "imported-key-verification"
	case ProtocolEncryptedShareVerification:
		return "encrypted-share-verification"
	case ProtocolPartialSignatureVerification:
		return "partial-signature-verification"
	case ProtocolMakeSecretPublic:
		return "make-secret-public"
	default:
		return "unknown"
	}
}

// IsVerificationOnly reports whether this kind finalizes in a single
// round with empty public/private output (§4.4).
func (p ProtocolKind) IsVerificationOnly() bool {
	switch p {
	case ProtocolEncryptedShareVerification, ProtocolPartialSignatureVerification, ProtocolMakeSecretPublic:
		return true
	default:
		return false
	}
}

// SessionType distinguishes a user-initiated session (carrying a
// sequence number assigned at session creation) from a system session.
type SessionType struct {
	IsUser         bool
	SequenceNumber uint64 // meaningful only if IsUser
}

// AccessStructure is the weighted threshold specification identifying
// which subsets of parties can jointly compute an MPC output.
type AccessStructure struct {
	Threshold uint32
	Weights   map[uint16]uint32 // party id -> weight
}

// TotalWeight sums the access structure's party weights.
func (a AccessStructure) TotalWeight() uint32 {
	var total uint32
	for _, w := range a.Weights {
		total += w
	}
	return total
}

// Session is the mutable per-session record the advancement engine
// advances across many rounds, keyed by ID in the session store.
type Session struct {
	ID              ID
	Protocol        ProtocolKind
	Type            SessionType
	PublicInput     []byte
	PrivateInput    []byte // nil unless the session holds a per-party secret
	DecryptionShare []byte // set only for Sign sessions

	// MessagesByRound maps crypto round -> party id -> opaque message
	// bytes observed for that round. Per the invariant in spec.md §3,
	// messages at round r are only consumed when advancing to r+1.
	MessagesByRound map[uint64]map[uint16][]byte

	CurrentRound   uint64
	CurrentAttempt uint32

	Finalized bool
}

// New creates a fresh session at round 0, attempt 0.
func New(id ID, protocol ProtocolKind, typ SessionType, publicInput, privateInput []byte) *Session {
	return &Session{
		ID:              id,
		Protocol:        protocol,
		Type:            typ,
		PublicInput:     publicInput,
		PrivateInput:    privateInput,
		MessagesByRound: make(map[uint64]map[uint16][]byte),
	}
}

// AddMessage buffers a party's message for a crypto round. Overwriting
// an existing (round, party) entry is a no-op: the first message from a
// party in a round wins, matching the append-once semantics of the
// consensus-ordered message stream.
func (s *Session) AddMessage(round uint64, party uint16, msg []byte) {
	byParty, ok := s.MessagesByRound[round]
	if !ok {
		byParty = make(map[uint16][]byte)
		s.MessagesByRound[round] = byParty
	}
	if _, exists := byParty[party]; exists {
		return
	}
	byParty[party] = msg
}

// MessagesForRound returns the party->message map collected so far for
// round, or nil if none have arrived yet.
func (s *Session) MessagesForRound(round uint64) map[uint16][]byte {
	return s.MessagesByRound[round]
}

// AdvanceRound bumps the current round and resets the attempt counter,
// called after a successful Advance (see advance.Engine).
func (s *Session) AdvanceRound() {
	s.CurrentRound++
	s.CurrentAttempt = 0
}

// BumpAttempt increments the attempt counter without changing round.
// It must NOT be called on a ThresholdNotReached outcome: spec.md §8
// scenario 2 requires that once enough messages eventually arrive for
// round r, the advance produces byte-identical output to having
// received them all in one delivery, which only holds if the attempt
// component of the RNG seed stayed fixed across the intervening
// ThresholdNotReached returns. BumpAttempt exists for the narrower case
// of an operator-initiated forced re-advance of the same round with an
// unchanged message set, which advance.Engine never triggers on its own.
func (s *Session) BumpAttempt() {
	s.CurrentAttempt++
}
