package stakeagg

import (
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"

	"github.com/luxfi/dwallet-consensus/committee"
)

// BLSVerifier verifies signatures against the committee's registered
// BLS public keys, wiring github.com/luxfi/crypto/bls the way the
// teacher's vms/platformvm/warp.Signer does for checkpoint-style
// aggregate signing.
type BLSVerifier struct {
	committee *committee.Committee
}

// NewBLSVerifier returns a Verifier backed by c's authority public keys.
func NewBLSVerifier(c *committee.Committee) *BLSVerifier {
	return &BLSVerifier{committee: c}
}

func (v *BLSVerifier) Verify(authority ids.NodeID, digest [32]byte, sig []byte) bool {
	var pkBytes []byte
	for _, a := range v.committee.Authorities() {
		if a.ID == authority {
			pkBytes = a.PublicKeyBytes
			break
		}
	}
	if len(pkBytes) == 0 || len(sig) == 0 {
		return false
	}
	pk, err := bls.PublicKeyFromCompressedBytes(pkBytes)
	if err != nil {
		return false
	}
	signature, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return false
	}
	return bls.Verify(pk, signature, digest[:])
}
