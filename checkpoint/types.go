// Package checkpoint defines the wire-shaped types that flow between
// the consensus handler, the checkpoint builder, and the checkpoint
// aggregator: per-commit pending rows, the tagged-union message kinds
// they carry, and fully certified checkpoints.
package checkpoint

import (
	"crypto/sha256"

	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// Stream distinguishes the dWallet-result checkpoint stream from the
// system-parameter checkpoint stream; the two are built, aggregated,
// and certified independently per SPEC_FULL.md §4.6/§4.7.
type Stream uint8

const (
	StreamDWallet Stream = iota
	StreamSystem
)

func (s Stream) String() string {
	switch s {
	case StreamDWallet:
		return "dwallet"
	case StreamSystem:
		return "system"
	default:
		return "unknown"
	}
}

// MessageKindTag is the tagged-union discriminant for one checkpoint
// message, matching spec.md §6's "MPC result messages" plus the system
// parameter setters.
type MessageKindTag uint8

const (
	KindRespondDWalletDKGFirstRoundOutput MessageKindTag = iota
	KindRespondDWalletDKGSecondRoundOutput
	KindRespondDWalletPresign
	KindRespondDWalletSign
	KindRespondDWalletEncryptedUserShare
	KindRespondDWalletPartialSignatureVerificationOutput
	KindRespondMakeDWalletUserSecretKeySharesPublic
	KindRespondDWalletImportedKeyVerificationOutput
	KindRespondDWalletMPCNetworkDKGOutput
	KindRespondDWalletMPCNetworkReconfigurationOutput

	// System checkpoint message kinds. Only KindSetNextConfigVersion is
	// handled end-to-end; the rest are reserved per spec.md §6/§9 Open
	// Question 3 and rejected with ErrUnsupportedSystemMessage.
	KindSetNextConfigVersion
	KindSetEpochDuration
	KindSetStakeSubsidyRate
	KindSetValidatorCountBounds
	KindSetRewardSlashingRate
	KindSetApprovedUpgrades
)

// supported reports whether this module implements the kind end to
// end, per spec.md §9 Open Question 3 resolution: unsupported system
// variants are rejected with a sentinel error rather than panicking.
func (k MessageKindTag) supported() bool {
	switch k {
	case KindSetEpochDuration, KindSetStakeSubsidyRate, KindSetValidatorCountBounds,
		KindSetRewardSlashingRate, KindSetApprovedUpgrades:
		return false
	default:
		return true
	}
}

// Message is one entry in a checkpoint's message list. Fields beyond
// Kind/Rejected are kept as a generically-packed payload: each result
// kind has a distinct field set (spec.md §6) and the handler/builder
// never need to interpret payload contents, only move and count bytes,
// so a flat byte payload keeps this type usable for every kind without
// ten near-identical structs.
type Message struct {
	Kind     MessageKindTag
	Author   uint16 // party id of the authority this result concerns, 0 for system messages
	Rejected bool
	Payload  []byte
}

var _ codec.Encoder = (*Message)(nil)
var _ codec.Decoder = (*Message)(nil)

func (m *Message) MarshalCanonical(p *wrappers.Packer) {
	p.PackByte(byte(m.Kind))
	p.PackShort(m.Author)
	p.PackBool(m.Rejected)
	p.PackByteSlice(m.Payload)
}

func (m *Message) UnmarshalCanonical(u *wrappers.Unpacker) error {
	m.Kind = MessageKindTag(u.UnpackByte())
	m.Author = u.UnpackShort()
	m.Rejected = u.UnpackBool()
	m.Payload = u.UnpackByteSlice()
	return u.Errored()
}

// NewSystemMessage validates kind against the supported set before
// constructing a system checkpoint message, per §9 Open Question 3.
func NewSystemMessage(kind MessageKindTag, payload []byte) (Message, error) {
	if !kind.supported() {
		return Message{}, errs.ErrUnsupportedSystemMessage
	}
	return Message{Kind: kind, Payload: payload}, nil
}

// Pending is the per-commit-height accumulation of messages destined
// for the next built checkpoint of one stream, keyed by height so the
// builder can scan in order (spec.md §4.1 pending_*_checkpoints).
type Pending struct {
	Height      uint64
	TimestampMs uint64
	Messages    []Message
}

var _ codec.Encoder = (*Pending)(nil)
var _ codec.Decoder = (*Pending)(nil)

func (p *Pending) MarshalCanonical(pk *wrappers.Packer) {
	pk.PackLong(p.Height)
	pk.PackLong(p.TimestampMs)
	pk.PackInt(uint32(len(p.Messages)))
	for i := range p.Messages {
		p.Messages[i].MarshalCanonical(pk)
	}
}

func (p *Pending) UnmarshalCanonical(u *wrappers.Unpacker) error {
	p.Height = u.UnpackLong()
	p.TimestampMs = u.UnpackLong()
	n := u.UnpackInt()
	p.Messages = make([]Message, n)
	for i := range p.Messages {
		if err := p.Messages[i].UnmarshalCanonical(u); err != nil {
			return err
		}
	}
	return u.Errored()
}

// Built is a locally assembled, not-yet-certified checkpoint: the
// output of the builder (spec.md §4.6 builder_*_checkpoint) and the
// input to the aggregator (§4.7).
type Built struct {
	Epoch       uint64
	Sequence    uint64
	Messages    []Message
	TimestampMs uint64
}

var _ codec.Encoder = (*Built)(nil)
var _ codec.Decoder = (*Built)(nil)

func (b *Built) MarshalCanonical(pk *wrappers.Packer) {
	pk.PackLong(b.Epoch)
	pk.PackLong(b.Sequence)
	pk.PackLong(b.TimestampMs)
	pk.PackInt(uint32(len(b.Messages)))
	for i := range b.Messages {
		b.Messages[i].MarshalCanonical(pk)
	}
}

func (b *Built) UnmarshalCanonical(u *wrappers.Unpacker) error {
	b.Epoch = u.UnpackLong()
	b.Sequence = u.UnpackLong()
	b.TimestampMs = u.UnpackLong()
	n := u.UnpackInt()
	b.Messages = make([]Message, n)
	for i := range b.Messages {
		if err := b.Messages[i].UnmarshalCanonical(u); err != nil {
			return err
		}
	}
	return u.Errored()
}

// Digest is the cryptographic hash authorities sign over, per spec.md
// §6's "Digest is the cryptographic hash over this tuple."
func (b *Built) Digest() [32]byte {
	enc := codec.Marshal(b)
	return sha256.Sum256(enc)
}

// Certified is a Built checkpoint plus the quorum-weighted signature
// aggregate over its digest (spec.md §3 "Certified checkpoint").
type Certified struct {
	Built       Built
	Digest      [32]byte
	TotalWeight uint64
	Signatures  map[uint16][]byte // party id -> signature, compact on-disk form
}

var _ codec.Encoder = (*Certified)(nil)
var _ codec.Decoder = (*Certified)(nil)

func (c *Certified) MarshalCanonical(p *wrappers.Packer) {
	c.Built.MarshalCanonical(p)
	p.PackBytes(c.Digest[:])
	p.PackLong(c.TotalWeight)
	p.PackInt(uint32(len(c.Signatures)))
	for party, sig := range c.Signatures {
		p.PackShort(party)
		p.PackByteSlice(sig)
	}
}

func (c *Certified) UnmarshalCanonical(u *wrappers.Unpacker) error {
	if err := c.Built.UnmarshalCanonical(u); err != nil {
		return err
	}
	copy(c.Digest[:], u.UnpackFixedBytes(32))
	c.TotalWeight = u.UnpackLong()
	n := u.UnpackInt()
	c.Signatures = make(map[uint16][]byte, n)
	for i := uint32(0); i < n; i++ {
		party := u.UnpackShort()
		c.Signatures[party] = u.UnpackByteSlice()
	}
	return u.Errored()
}
