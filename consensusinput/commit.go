// Package consensusinput defines the external interface a consensus
// commit arrives through: the per-round ordered set of authenticated
// transactions the handler (SPEC_FULL.md §4.5) consumes, and the
// execution watermark that makes re-delivery of an already-processed
// commit a safe no-op.
package consensusinput

import (
	"crypto/sha256"

	"github.com/luxfi/ids"

	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// TxKind is the tagged-union discriminant of one ordered transaction,
// covering every consensus-output variant of spec.md §6.
type TxKind uint8

const (
	TxDWalletMPCMessage TxKind = iota
	TxDWalletMPCOutput
	TxDWalletMPCMaliciousReport
	TxDWalletMPCThresholdNotReached
	TxDWalletCheckpointSignature
	TxSystemCheckpointSignature
	TxCapabilityNotificationV1
)

// TxKey is the transaction's dedup key: consensus guarantees each
// (Author, DigestOfPayload) pair is delivered at least once but the
// handler must treat redelivery as a no-op (spec.md §4.5 step 3).
type TxKey struct {
	Author  ids.NodeID
	Payload [32]byte
}

// Transaction is one ordered, consensus-authenticated entry in a
// Commit. Author is the consensus-layer-attested sender; the handler
// compares it against the party field embedded in MPC message and MPC
// output payloads when it routes them, and a mismatch drops the
// transaction (spec.md §4.5 step 2).
type Transaction struct {
	Kind    TxKind
	Author  ids.NodeID
	Payload []byte
}

// Key returns this transaction's dedup key.
func (t Transaction) Key() TxKey {
	return TxKey{Author: t.Author, Payload: digest32(t.Payload)}
}

var _ codec.Encoder = (*Transaction)(nil)
var _ codec.Decoder = (*Transaction)(nil)

func (t *Transaction) MarshalCanonical(p *wrappers.Packer) {
	p.PackByte(byte(t.Kind))
	p.PackBytes(t.Author[:])
	p.PackByteSlice(t.Payload)
}

func (t *Transaction) UnmarshalCanonical(u *wrappers.Unpacker) error {
	t.Kind = TxKind(u.UnpackByte())
	copy(t.Author[:], u.UnpackFixedBytes(len(t.Author)))
	t.Payload = u.UnpackByteSlice()
	return u.Errored()
}

// ExecutionIndices is the 3-tuple consensus watermark of spec.md §3:
// (last committed round, sub-dag index, transaction index), required
// to be strictly lexicographically increasing across commits so a
// stale or duplicate commit delivery can be detected and skipped
// before the handler does any work.
type ExecutionIndices struct {
	LastCommittedRound uint64
	SubDagIndex         uint64
	TransactionIndex    uint64
}

// Less reports whether idx sorts strictly before other.
func (idx ExecutionIndices) Less(other ExecutionIndices) bool {
	if idx.LastCommittedRound != other.LastCommittedRound {
		return idx.LastCommittedRound < other.LastCommittedRound
	}
	if idx.SubDagIndex != other.SubDagIndex {
		return idx.SubDagIndex < other.SubDagIndex
	}
	return idx.TransactionIndex < other.TransactionIndex
}

// Commit is one delivered consensus output: an ordered transaction
// batch plus the execution indices it advances to.
type Commit struct {
	Indices      ExecutionIndices
	Transactions []Transaction
	TimestampMs  uint64
}

func digest32(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}
