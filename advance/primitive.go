package advance

import (
	"crypto/sha256"
	"io"
	"sort"

	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// defaultPrimitive is the placeholder Combine/Share implementation:
// it hashes the round's messages in a canonical (party-id-sorted)
// order together with 32 bytes pulled from the round's derived RNG.
// Determinism here is what makes spec.md §8 Testable Property 6
// ("replaying the same MPC advance inputs produces byte-identical
// outgoing messages") hold for every protocol kind uniformly.
type defaultPrimitive struct{}

func canonicalize(messages map[uint16][]byte) []byte {
	parties := make([]uint16, 0, len(messages))
	for p := range messages {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })

	p := wrappers.NewPacker(64)
	for _, party := range parties {
		p.PackShort(party)
		p.PackByteSlice(messages[party])
	}
	return p.Bytes
}

func (defaultPrimitive) Combine(rng io.Reader, messages map[uint16][]byte) ([]byte, error) {
	nonce := make([]byte, 32)
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte{0, 'c'})
	h.Write(canonicalize(messages))
	h.Write(nonce)
	return h.Sum(nil), nil
}

func (defaultPrimitive) Share(rng io.Reader, messages map[uint16][]byte) ([]byte, error) {
	nonce := make([]byte, 32)
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte{1, 's'})
	h.Write(canonicalize(messages))
	h.Write(nonce)
	return h.Sum(nil), nil
}
