package checkpoint

import (
	"github.com/luxfi/warp"
)

// WarpSigner wraps an external github.com/luxfi/warp.Signer to sign
// Built checkpoints, generalizing the teacher's
// UnsignedMessage{SourceChainID,DestinationChainID,Payload} ->
// BLS-signature shape (vms/platformvm/warp) from cross-chain warp
// messages to this node's own checkpoint digests: Epoch takes the
// place of SourceChainID and Stream takes the place of
// DestinationChainID, with the checkpoint digest as Payload.
type WarpSigner struct {
	signer warp.Signer
}

// NewWarpSigner returns a WarpSigner backed by signer.
func NewWarpSigner(signer warp.Signer) *WarpSigner {
	return &WarpSigner{signer: signer}
}

// SignBuilt signs built's digest and returns the raw BLS signature
// bytes carried in a CheckpointSignaturePayload.
func (w *WarpSigner) SignBuilt(stream Stream, built *Built) ([]byte, error) {
	digest := built.Digest()
	msg := &warp.Message{
		SourceChainID:      epochChainID(built.Epoch),
		DestinationChainID: []byte{byte(stream)},
		Payload:            digest[:],
	}
	sig, err := w.signer.Sign(msg)
	if err != nil {
		return nil, err
	}
	return sig.Bytes(), nil
}

// epochChainID renders an epoch number as an 8-byte big-endian chain
// ID, the way warp.Message expects a fixed-identity source.
func epochChainID(epoch uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(epoch)
		epoch >>= 8
	}
	return b
}
