// Package stakeagg implements the stake-weighted signature aggregator
// described in SPEC_FULL.md §4.2: accumulate (authority, signature)
// envelopes keyed by a digest, detect the first crossing of quorum
// stake, and classify conflicting or invalid signatures.
//
// Grounded on the teacher's validators weight/subset-weight arithmetic
// (committee.Committee, generalized from validators.manager) and the
// BLS signature shape used by vms/platformvm/warp.Signer; signature
// verification itself is delegated to a Verifier so the cryptographic
// primitive (explicitly out of scope, spec.md §1) stays pluggable.
package stakeagg

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/dwallet-consensus/committee"
	"github.com/luxfi/dwallet-consensus/errs"
)

// Verifier checks an authority's signature over a digest. Production
// code wires this to github.com/luxfi/crypto/bls; tests use a fake that
// accepts every signature.
type Verifier interface {
	Verify(authority ids.NodeID, digest [32]byte, sig []byte) bool
}

// Certificate is the quorum-weight proof returned on QuorumReached: the
// digest, the signatures collected (by authority), and the total stake.
type Certificate struct {
	Digest      [32]byte
	Signatures  map[ids.NodeID][]byte
	TotalWeight uint64
}

// InsertResult is the outcome of Aggregator.Insert.
type InsertResult struct {
	// Exactly one of the following is populated.
	Quorum *Certificate

	NotEnoughVotes *NotEnoughVotes

	FailedKind error // one of errs.ErrRepeatedSigner / ErrInvalidSignature / ErrNotInCommittee, or nil
}

// NotEnoughVotes reports the malformed/conflicting votes observed so far
// alongside the "not yet at quorum" outcome.
type NotEnoughVotes struct {
	BadVotes      int
	BadAuthorities []ids.NodeID
}

// Aggregator accumulates signatures over potentially many distinct
// digests (e.g. a split-brain scenario, §4.7 step 5) for one logical
// quantity (one checkpoint sequence, one MPC session's output). It is
// owned by a single task; callers must not share it across goroutines
// without external synchronization, per spec.md §5.
type Aggregator struct {
	committee *committee.Committee
	verifier  Verifier

	signerDigest map[ids.NodeID][32]byte // first digest each authority signed
	perDigest    map[[32]byte]map[ids.NodeID][]byte
	weightByDigest map[[32]byte]uint64

	badVotes      int
	badAuthorities []ids.NodeID

	quorumReachedOn *[32]byte // nil until QuorumReached fires once
}

// New creates an Aggregator scoped to c, verifying signatures with v.
func New(c *committee.Committee, v Verifier) *Aggregator {
	return &Aggregator{
		committee:      c,
		verifier:       v,
		signerDigest:   make(map[ids.NodeID][32]byte),
		perDigest:      make(map[[32]byte]map[ids.NodeID][]byte),
		weightByDigest: make(map[[32]byte]uint64),
	}
}

// Insert records authority's signature over digest.
func (a *Aggregator) Insert(authority ids.NodeID, digest [32]byte, sig []byte) InsertResult {
	if !a.committee.Has(authority) {
		return InsertResult{FailedKind: errs.ErrNotInCommittee}
	}
	if !a.verifier.Verify(authority, digest, sig) {
		return InsertResult{FailedKind: errs.ErrInvalidSignature}
	}

	if prior, signed := a.signerDigest[authority]; signed {
		if prior != digest {
			// Conflict: a second distinct signature from the same
			// authority does not replace the first (§4.2 tie-break).
			a.badVotes++
			a.badAuthorities = append(a.badAuthorities, authority)
		}
		return a.notEnoughOrQuorum(prior)
	}

	a.signerDigest[authority] = digest
	if a.perDigest[digest] == nil {
		a.perDigest[digest] = make(map[ids.NodeID][]byte)
	}
	a.perDigest[digest][authority] = sig
	a.weightByDigest[digest] += a.committee.Weight(authority)

	return a.notEnoughOrQuorum(digest)
}

func (a *Aggregator) notEnoughOrQuorum(digest [32]byte) InsertResult {
	if a.quorumReachedOn != nil {
		// Quorum was already declared (possibly on a different digest in
		// a pathological run); further inserts are reported as
		// not-enough-votes noise rather than re-triggering QuorumReached.
		return InsertResult{NotEnoughVotes: &NotEnoughVotes{BadVotes: a.badVotes, BadAuthorities: a.badAuthorities}}
	}

	if a.weightByDigest[digest] >= a.committee.QuorumThreshold() {
		a.quorumReachedOn = &digest
		sigs := a.perDigest[digest]
		certSigs := make(map[ids.NodeID][]byte, len(sigs))
		for k, v := range sigs {
			certSigs[k] = v
		}
		return InsertResult{Quorum: &Certificate{
			Digest:      digest,
			Signatures:  certSigs,
			TotalWeight: a.weightByDigest[digest],
		}}
	}

	return InsertResult{NotEnoughVotes: &NotEnoughVotes{BadVotes: a.badVotes, BadAuthorities: append([]ids.NodeID(nil), a.badAuthorities...)}}
}

// Reached reports whether this aggregator has ever declared quorum, and
// on which digest.
func (a *Aggregator) Reached() (digest [32]byte, ok bool) {
	if a.quorumReachedOn == nil {
		return [32]byte{}, false
	}
	return *a.quorumReachedOn, true
}

// WeightOn returns the accumulated stake for a given digest, for
// diagnostics/metrics.
func (a *Aggregator) WeightOn(digest [32]byte) uint64 {
	return a.weightByDigest[digest]
}

func (a *Aggregator) String() string {
	return fmt.Sprintf("aggregator{digests=%d, badVotes=%d}", len(a.perDigest), a.badVotes)
}
