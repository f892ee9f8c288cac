package tables

import (
	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/consensusinput"
	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// ExecutionIndices is an alias for consensusinput.ExecutionIndices, the
// 3-tuple execution watermark of spec.md §3, persisted under the
// single last_consensus_stats sentinel key alongside a per-authority
// message counter. Kept as a local name so call sites in this package
// don't need to import consensusinput directly.
type ExecutionIndices = consensusinput.ExecutionIndices

// Stats is the full value stored under last_consensus_stats: the
// execution watermark plus a message counter per authority party id,
// used for observability (teacher-style per-validator gauges).
type Stats struct {
	Indices          ExecutionIndices
	MessagesByParty map[uint16]uint64
}

var _ codec.Encoder = (*Stats)(nil)
var _ codec.Decoder = (*Stats)(nil)

func (s *Stats) MarshalCanonical(p *wrappers.Packer) {
	p.PackLong(s.Indices.LastCommittedRound)
	p.PackLong(s.Indices.SubDagIndex)
	p.PackLong(s.Indices.TransactionIndex)
	p.PackInt(uint32(len(s.MessagesByParty)))
	for party, count := range s.MessagesByParty {
		p.PackShort(party)
		p.PackLong(count)
	}
}

func (s *Stats) UnmarshalCanonical(u *wrappers.Unpacker) error {
	s.Indices.LastCommittedRound = u.UnpackLong()
	s.Indices.SubDagIndex = u.UnpackLong()
	s.Indices.TransactionIndex = u.UnpackLong()
	n := u.UnpackInt()
	s.MessagesByParty = make(map[uint16]uint64, n)
	for i := uint32(0); i < n; i++ {
		party := u.UnpackShort()
		count := u.UnpackLong()
		s.MessagesByParty[party] = count
	}
	return u.Errored()
}

// CapabilityRecord is the latest advertised capability per authority,
// monotonic by Generation per spec.md §4.1.
type CapabilityRecord struct {
	Generation        uint64
	SupportedVersions []uint32
}

var _ codec.Encoder = (*CapabilityRecord)(nil)
var _ codec.Decoder = (*CapabilityRecord)(nil)

func (c *CapabilityRecord) MarshalCanonical(p *wrappers.Packer) {
	p.PackLong(c.Generation)
	p.PackInt(uint32(len(c.SupportedVersions)))
	for _, v := range c.SupportedVersions {
		p.PackInt(v)
	}
}

func (c *CapabilityRecord) UnmarshalCanonical(u *wrappers.Unpacker) error {
	c.Generation = u.UnpackLong()
	n := u.UnpackInt()
	c.SupportedVersions = make([]uint32, n)
	for i := range c.SupportedVersions {
		c.SupportedVersions[i] = u.UnpackInt()
	}
	return u.Errored()
}

// Supports reports whether the authority has advertised support for
// version v in its latest capability record.
func (c *CapabilityRecord) Supports(v uint32) bool {
	for _, sv := range c.SupportedVersions {
		if sv == v {
			return true
		}
	}
	return false
}

// RawMessage is a persisted mpc_messages_by_round / mpc_outputs_by_round
// entry: the envelope is kept as opaque bytes (the handler is the only
// reader that needs to interpret them; advance.Advancer decodes them
// lazily per protocol kind), paired with the author for routing.
type RawMessage struct {
	Author ids16
	Bytes  []byte
}

// ids16 avoids importing github.com/luxfi/ids into this narrowly
// scoped file just for a party-id alias; party ids are uint16 per
// committee.Committee.PartyID.
type ids16 = uint16

var _ codec.Encoder = (*RawMessage)(nil)
var _ codec.Decoder = (*RawMessage)(nil)

func (m *RawMessage) MarshalCanonical(p *wrappers.Packer) {
	p.PackShort(m.Author)
	p.PackByteSlice(m.Bytes)
}

func (m *RawMessage) UnmarshalCanonical(u *wrappers.Unpacker) error {
	m.Author = u.UnpackShort()
	m.Bytes = u.UnpackByteSlice()
	return u.Errored()
}

// RawMessageList is the array-of-messages value stored at one round
// key in mpc_messages_by_round / mpc_outputs_by_round.
type RawMessageList struct {
	Items []RawMessage
}

var _ codec.Encoder = (*RawMessageList)(nil)
var _ codec.Decoder = (*RawMessageList)(nil)

func (l *RawMessageList) MarshalCanonical(p *wrappers.Packer) {
	p.PackInt(uint32(len(l.Items)))
	for i := range l.Items {
		l.Items[i].MarshalCanonical(p)
	}
}

func (l *RawMessageList) UnmarshalCanonical(u *wrappers.Unpacker) error {
	n := u.UnpackInt()
	l.Items = make([]RawMessage, n)
	for i := range l.Items {
		if err := l.Items[i].UnmarshalCanonical(u); err != nil {
			return err
		}
	}
	return u.Errored()
}

// SignatureMessage is a pending_*_checkpoint_signatures row: one
// authority's signature over the checkpoint built at Sequence.
type SignatureMessage struct {
	Sequence  uint64
	Index     uint32
	Author    uint16
	Signature []byte
}

var _ codec.Encoder = (*SignatureMessage)(nil)
var _ codec.Decoder = (*SignatureMessage)(nil)

func (m *SignatureMessage) MarshalCanonical(p *wrappers.Packer) {
	p.PackLong(m.Sequence)
	p.PackInt(m.Index)
	p.PackShort(m.Author)
	p.PackByteSlice(m.Signature)
}

func (m *SignatureMessage) UnmarshalCanonical(u *wrappers.Unpacker) error {
	m.Sequence = u.UnpackLong()
	m.Index = u.UnpackInt()
	m.Author = u.UnpackShort()
	m.Signature = u.UnpackByteSlice()
	return u.Errored()
}

// MaliciousReport and ThresholdNotReachedReport are persisted verbatim
// for offline tooling per SPEC_FULL.md §9 (supplemented from
// original_source/, not acted on by this module beyond storage).
type MaliciousReport struct {
	Author  uint16
	Session [32]byte
	Reason  []byte
}

var _ codec.Encoder = (*MaliciousReport)(nil)
var _ codec.Decoder = (*MaliciousReport)(nil)

func (m *MaliciousReport) MarshalCanonical(p *wrappers.Packer) {
	p.PackShort(m.Author)
	p.PackBytes(m.Session[:])
	p.PackByteSlice(m.Reason)
}

func (m *MaliciousReport) UnmarshalCanonical(u *wrappers.Unpacker) error {
	m.Author = u.UnpackShort()
	copy(m.Session[:], u.UnpackFixedBytes(32))
	m.Reason = u.UnpackByteSlice()
	return u.Errored()
}

type ThresholdNotReachedReport struct {
	Author     uint16
	Session    [32]byte
	Round      uint64
	BadVotes   uint32
}

var _ codec.Encoder = (*ThresholdNotReachedReport)(nil)
var _ codec.Decoder = (*ThresholdNotReachedReport)(nil)

func (r *ThresholdNotReachedReport) MarshalCanonical(p *wrappers.Packer) {
	p.PackShort(r.Author)
	p.PackBytes(r.Session[:])
	p.PackLong(r.Round)
	p.PackInt(r.BadVotes)
}

func (r *ThresholdNotReachedReport) UnmarshalCanonical(u *wrappers.Unpacker) error {
	r.Author = u.UnpackShort()
	copy(r.Session[:], u.UnpackFixedBytes(32))
	r.Round = u.UnpackLong()
	r.BadVotes = u.UnpackInt()
	return u.Errored()
}
