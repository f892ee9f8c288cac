package advance

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/luxfi/dwallet-consensus/mpcsession"
)

// deriveSeed folds (rootSeed, sessionID, round, attempt) into a single
// 32-byte seed using the same tagged, repeated-sha256.New() domain
// separation idiom as the teacher's crypto/binding.Merkle3: one
// labeled hash per input, then a final hash over the labeled digests.
// Re-deriving with the same four inputs always yields the same seed,
// which is the determinism rule of spec.md §4.4's "RNG rule".
func deriveSeed(rootSeed []byte, sessionID mpcsession.ID, round uint64, attempt uint32) [32]byte {
	h := sha256.New()
	h.Write([]byte{0})
	h.Write(rootSeed)
	l0 := h.Sum(nil)

	h.Reset()
	h.Write([]byte{1})
	h.Write(sessionID[:])
	l1 := h.Sum(nil)

	h.Reset()
	h.Write([]byte{2})
	var roundBytes [8]byte
	binary.BigEndian.PutUint64(roundBytes[:], round)
	h.Write(roundBytes[:])
	l2 := h.Sum(nil)

	h.Reset()
	h.Write([]byte{3})
	var attemptBytes [4]byte
	binary.BigEndian.PutUint32(attemptBytes[:], attempt)
	h.Write(attemptBytes[:])
	l3 := h.Sum(nil)

	h.Reset()
	h.Write(l0)
	h.Write(l1)
	h.Write(l2)
	h.Write(l3)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// seededReader is a deterministic counter-mode expansion of a 32-byte
// seed into an arbitrarily long byte stream, giving every Advancer an
// io.Reader it can feed to randomness-consuming MPC primitives without
// this package needing to know what those primitives are.
type seededReader struct {
	seed    [32]byte
	counter uint64
	buf     []byte
}

// NewRNG returns the deterministic per-round RNG stream for
// (rootSeed, sessionID, round, attempt), per spec.md §4.4.
func NewRNG(rootSeed []byte, sessionID mpcsession.ID, round uint64, attempt uint32) io.Reader {
	return &seededReader{seed: deriveSeed(rootSeed, sessionID, round, attempt)}
}

func (r *seededReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.buf) == 0 {
			h := sha256.New()
			h.Write(r.seed[:])
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], r.counter)
			h.Write(ctr[:])
			r.buf = h.Sum(nil)
			r.counter++
		}
		k := copy(p[n:], r.buf)
		r.buf = r.buf[k:]
		n += k
	}
	return n, nil
}
