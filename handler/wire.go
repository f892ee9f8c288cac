package handler

import (
	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// The payload types below are the canonical encodings carried inside
// consensusinput.Transaction.Payload for each TxKind; the handler is
// the only reader that ever needs to interpret them (spec.md §4.5).

// MPCMessagePayload carries one party's round message for an MPC
// session, routed into mpc_messages_by_round.
type MPCMessagePayload struct {
	Session [32]byte
	Round   uint64
	Party   uint16
	Message []byte
}

var _ codec.Encoder = (*MPCMessagePayload)(nil)
var _ codec.Decoder = (*MPCMessagePayload)(nil)

func (m *MPCMessagePayload) MarshalCanonical(p *wrappers.Packer) {
	p.PackBytes(m.Session[:])
	p.PackLong(m.Round)
	p.PackShort(m.Party)
	p.PackByteSlice(m.Message)
}

func (m *MPCMessagePayload) UnmarshalCanonical(u *wrappers.Unpacker) error {
	copy(m.Session[:], u.UnpackFixedBytes(32))
	m.Round = u.UnpackLong()
	m.Party = u.UnpackShort()
	m.Message = u.UnpackByteSlice()
	return u.Errored()
}

// MPCOutputPayload carries one authority's attested terminal output
// for an MPC session, the input to outputverifier.Verifier.Record.
type MPCOutputPayload struct {
	Session  [32]byte
	Party    uint16
	Rejected bool
	Output   []byte
	// Kind ties the output back to its checkpoint.MessageKindTag once
	// quorum is reached and the result needs to be appended to the
	// dWallet pending checkpoint stream.
	Kind checkpoint.MessageKindTag
}

var _ codec.Encoder = (*MPCOutputPayload)(nil)
var _ codec.Decoder = (*MPCOutputPayload)(nil)

func (m *MPCOutputPayload) MarshalCanonical(p *wrappers.Packer) {
	p.PackBytes(m.Session[:])
	p.PackShort(m.Party)
	p.PackBool(m.Rejected)
	p.PackByteSlice(m.Output)
	p.PackByte(byte(m.Kind))
}

func (m *MPCOutputPayload) UnmarshalCanonical(u *wrappers.Unpacker) error {
	copy(m.Session[:], u.UnpackFixedBytes(32))
	m.Party = u.UnpackShort()
	m.Rejected = u.UnpackBool()
	m.Output = u.UnpackByteSlice()
	m.Kind = checkpoint.MessageKindTag(u.UnpackByte())
	return u.Errored()
}

// CheckpointSignaturePayload carries one authority's signature over a
// built checkpoint's digest, for either stream.
type CheckpointSignaturePayload struct {
	Sequence  uint64
	Digest    [32]byte
	Signature []byte
}

var _ codec.Encoder = (*CheckpointSignaturePayload)(nil)
var _ codec.Decoder = (*CheckpointSignaturePayload)(nil)

func (m *CheckpointSignaturePayload) MarshalCanonical(p *wrappers.Packer) {
	p.PackLong(m.Sequence)
	p.PackBytes(m.Digest[:])
	p.PackByteSlice(m.Signature)
}

func (m *CheckpointSignaturePayload) UnmarshalCanonical(u *wrappers.Unpacker) error {
	m.Sequence = u.UnpackLong()
	copy(m.Digest[:], u.UnpackFixedBytes(32))
	m.Signature = u.UnpackByteSlice()
	return u.Errored()
}

// CapabilityNotificationPayload carries an authority's self-reported
// set of supported protocol config versions (spec.md §9 supplemented
// feature).
type CapabilityNotificationPayload struct {
	Generation        uint64
	SupportedVersions []uint32
}

var _ codec.Encoder = (*CapabilityNotificationPayload)(nil)
var _ codec.Decoder = (*CapabilityNotificationPayload)(nil)

func (m *CapabilityNotificationPayload) MarshalCanonical(p *wrappers.Packer) {
	p.PackLong(m.Generation)
	p.PackInt(uint32(len(m.SupportedVersions)))
	for _, v := range m.SupportedVersions {
		p.PackInt(v)
	}
}

func (m *CapabilityNotificationPayload) UnmarshalCanonical(u *wrappers.Unpacker) error {
	m.Generation = u.UnpackLong()
	n := u.UnpackInt()
	m.SupportedVersions = make([]uint32, n)
	for i := range m.SupportedVersions {
		m.SupportedVersions[i] = u.UnpackInt()
	}
	return u.Errored()
}

// SystemMessagePayload carries a raw system checkpoint message
// (§6/§9). No transaction kind carries it, and Handler does not route
// it.
type SystemMessagePayload struct {
	Kind    checkpoint.MessageKindTag
	Payload []byte
}

var _ codec.Encoder = (*SystemMessagePayload)(nil)
var _ codec.Decoder = (*SystemMessagePayload)(nil)

func (m *SystemMessagePayload) MarshalCanonical(p *wrappers.Packer) {
	p.PackByte(byte(m.Kind))
	p.PackByteSlice(m.Payload)
}

func (m *SystemMessagePayload) UnmarshalCanonical(u *wrappers.Unpacker) error {
	m.Kind = checkpoint.MessageKindTag(u.UnpackByte())
	m.Payload = u.UnpackByteSlice()
	return u.Errored()
}

// MaliciousReportPayload and ThresholdNotReachedPayload mirror the
// persisted report rows (spec.md §9 supplemented feature).
type MaliciousReportPayload struct {
	Session [32]byte
	Reason  []byte
}

var _ codec.Encoder = (*MaliciousReportPayload)(nil)
var _ codec.Decoder = (*MaliciousReportPayload)(nil)

func (m *MaliciousReportPayload) MarshalCanonical(p *wrappers.Packer) {
	p.PackBytes(m.Session[:])
	p.PackByteSlice(m.Reason)
}

func (m *MaliciousReportPayload) UnmarshalCanonical(u *wrappers.Unpacker) error {
	copy(m.Session[:], u.UnpackFixedBytes(32))
	m.Reason = u.UnpackByteSlice()
	return u.Errored()
}

type ThresholdNotReachedPayload struct {
	Session  [32]byte
	Round    uint64
	BadVotes uint32
}

var _ codec.Encoder = (*ThresholdNotReachedPayload)(nil)
var _ codec.Decoder = (*ThresholdNotReachedPayload)(nil)

func (m *ThresholdNotReachedPayload) MarshalCanonical(p *wrappers.Packer) {
	p.PackBytes(m.Session[:])
	p.PackLong(m.Round)
	p.PackInt(m.BadVotes)
}

func (m *ThresholdNotReachedPayload) UnmarshalCanonical(u *wrappers.Unpacker) error {
	copy(m.Session[:], u.UnpackFixedBytes(32))
	m.Round = u.UnpackLong()
	m.BadVotes = u.UnpackInt()
	return u.Errored()
}
