package advance

import "github.com/luxfi/dwallet-consensus/errs"

// envelopeTag marks a well-formed round message. Any message missing
// the tag, or carrying no payload at all, fails to deserialize and its
// sender is excluded as malicious for this advance, per spec.md §4.4's
// "Message deserialization is defensive" contract.
const envelopeTag byte = 0xD1

// encodeEnvelope wraps a payload for transmission.
func encodeEnvelope(payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, envelopeTag)
	return append(out, payload...)
}

// decodeEnvelope unwraps a payload, returning ErrMalformedPayload if
// the message does not carry the expected tag or is empty.
func decodeEnvelope(msg []byte) ([]byte, error) {
	if len(msg) < 2 || msg[0] != envelopeTag {
		return nil, errs.ErrMalformedPayload
	}
	return msg[1:], nil
}
