// Package outputverifier implements the MPC output quorum tracker of
// SPEC_FULL.md §4.3: per session, group outputs by digest and declare
// "first quorum" exactly once when stake on a digest crosses the
// committee's quorum threshold.
//
// Grounded on the teacher's utils/bag.Bag[T] generic vote counter:
// each session's weightByDigest is a Bag[[32]byte] whose per-element
// int count stands in for accumulated stake weight (AddCount(digest,
// weight)), and a per-session seenAuthority set ensures a single
// authority is never counted twice toward the same session's quorum
// (Testable Property 2).
package outputverifier

import (
	"crypto/sha256"

	"github.com/luxfi/ids"

	"github.com/luxfi/dwallet-consensus/committee"
	"github.com/luxfi/dwallet-consensus/utils/bag"
)

// OutputKind distinguishes a successful MPC result from a session
// failure, per spec.md §3's "CompletedSuccessfully(bytes) | SessionFailed".
type OutputKind uint8

const (
	OutputCompleted OutputKind = iota
	OutputSessionFailed
)

// Output is an authority-authenticated MPC result.
type Output struct {
	Kind  OutputKind
	Bytes []byte // empty for OutputSessionFailed
}

// Digest returns the grouping key the verifier counts votes under: the
// kind plus the payload bytes, so a SessionFailed vote and a
// CompletedSuccessfully(empty) vote are never conflated.
func (o Output) Digest() [32]byte {
	return digestOf(o.Kind, o.Bytes)
}

// Verdict is the result of recording one (authority, output) observation.
type Verdict uint8

const (
	// VerdictPending: recorded, no digest has reached quorum yet.
	VerdictPending Verdict = iota
	// VerdictDuplicate: (session, authority) was already recorded.
	VerdictDuplicate
	// VerdictAlreadyCommitted: this session already reached first quorum.
	VerdictAlreadyCommitted
	// VerdictFirstQuorum: this call caused the session to cross quorum;
	// fires exactly once per session.
	VerdictFirstQuorum
)

type sessionState struct {
	seenAuthority  map[ids.NodeID]bool
	weightByDigest bag.Bag[[32]byte] // per-digest count stands in for accumulated stake weight
	outputByDigest map[[32]byte]Output
	committed      bool
}

// Verifier tracks, per session, votes over MPC outputs and declares
// first-quorum exactly once. Owned by a single task (the consensus
// handler); not safe for concurrent use without external locking.
type Verifier struct {
	committee *committee.Committee
	sessions  map[ids.ID]*sessionState
}

// New returns a Verifier scoped to the given committee.
func New(c *committee.Committee) *Verifier {
	return &Verifier{committee: c, sessions: make(map[ids.ID]*sessionState)}
}

// Record processes one (session, authority, output) observation.
func (v *Verifier) Record(session ids.ID, authority ids.NodeID, output Output) (Verdict, Output) {
	st, ok := v.sessions[session]
	if !ok {
		st = &sessionState{
			seenAuthority:  make(map[ids.NodeID]bool),
			weightByDigest: bag.New[[32]byte](),
			outputByDigest: make(map[[32]byte]Output),
		}
		v.sessions[session] = st
	}

	if st.committed {
		return VerdictAlreadyCommitted, Output{}
	}
	if st.seenAuthority[authority] {
		return VerdictDuplicate, Output{}
	}
	st.seenAuthority[authority] = true

	digest := output.Digest()
	st.outputByDigest[digest] = output
	st.weightByDigest.AddCount(digest, int(v.committee.Weight(authority)))

	if uint64(st.weightByDigest.Count(digest)) >= v.committee.QuorumThreshold() {
		st.committed = true
		return VerdictFirstQuorum, output
	}
	return VerdictPending, Output{}
}

// Committed reports whether session has already reached first quorum.
func (v *Verifier) Committed(session ids.ID) bool {
	st, ok := v.sessions[session]
	return ok && st.committed
}

// Forget drops a session's tracking state once it has been finalized
// and its checkpoint message emitted, bounding memory use.
func (v *Verifier) Forget(session ids.ID) {
	delete(v.sessions, session)
}

func digestOf(kind OutputKind, bytes []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(kind)})
	h.Write(bytes)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
