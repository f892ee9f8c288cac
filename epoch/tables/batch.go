package tables

import (
	"fmt"

	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/errs"
)

// Batch accumulates one consensus commit's (or one builder/aggregator
// cycle's) table updates so they land in a single atomic write, per
// spec.md §4.1's "all updates originating in one consensus commit are
// grouped into a single atomic batch" contract.
type Batch struct {
	t   *Tables
	raw WriteBatch
}

// NewBatch starts a new atomic write set over t.
func (t *Tables) NewBatch() *Batch {
	return &Batch{t: t, raw: t.db.NewBatch()}
}

func (b *Batch) put(c cf, key []byte, v codec.Encoder) {
	b.raw.Put(cfKey(c, key), codec.Marshal(v))
}

func (b *Batch) delete(c cf, key []byte) {
	b.raw.Delete(cfKey(c, key))
}

// PutPendingTransaction records a transaction this node submitted to
// consensus but has not yet observed ordered.
func (b *Batch) PutPendingTransaction(key []byte, payload []byte) {
	b.raw.Put(cfKey(cfPendingTx, key), payload)
}

// DeletePendingTransaction removes a row once its commit has been
// observed, closing the loop opened by PutPendingTransaction.
func (b *Batch) DeletePendingTransaction(key []byte) {
	b.delete(cfPendingTx, key)
}

// MarkProcessed inserts key into the persistent dedup set.
func (b *Batch) MarkProcessed(key []byte) {
	b.raw.Put(cfKey(cfProcessed, key), []byte{1})
}

// PutStats overwrites the single last_consensus_stats sentinel row.
func (b *Batch) PutStats(s Stats) {
	b.put(cfStats, nil, &s)
}

// PutCapability records authority party's latest capability record;
// callers are responsible for only calling this with a strictly
// greater Generation, per spec.md §4.1's "monotonic by generation".
func (b *Batch) PutCapability(party uint16, rec CapabilityRecord) {
	b.put(cfCapabilities, u64key(uint64(party)), &rec)
}

// MarkConfigVersionSent records that this node has emitted a
// config-bump proposal for version v, preventing re-emission (spec.md
// scenario 5).
func (b *Batch) MarkConfigVersionSent(v uint32) {
	b.raw.Put(cfKey(cfConfigVersionSent, u64key(uint64(v))), []byte{1})
}

// AppendMPCMessage appends one round-r message observed from author to
// mpc_messages_by_round, read-modify-write against the batch's owning
// Tables (safe: both handler and batch assembly run single-threaded).
func (b *Batch) AppendMPCMessage(round uint64, author uint16, payload []byte) error {
	return b.appendRaw(cfMPCMessages, round, author, payload)
}

// AppendMPCOutput is AppendMPCMessage's mpc_outputs_by_round sibling.
func (b *Batch) AppendMPCOutput(round uint64, author uint16, payload []byte) error {
	return b.appendRaw(cfMPCOutputs, round, author, payload)
}

func (b *Batch) appendRaw(c cf, round uint64, author uint16, payload []byte) error {
	var list RawMessageList
	_, err := b.t.get(c, u64key(round), &list)
	if err != nil {
		return err
	}
	list.Items = append(list.Items, RawMessage{Author: author, Bytes: payload})
	b.put(c, u64key(round), &list)
	return nil
}

// AppendPendingCheckpoint appends msgs to the pending row at height for
// stream s, creating the row (and its heights index entry) if absent.
func (b *Batch) AppendPendingCheckpoint(s checkpoint.Stream, height uint64, timestampMs uint64, msgs []checkpoint.Message) error {
	dataCF, heightsCF := pendingCF(s)

	var pending checkpoint.Pending
	ok, err := b.t.get(dataCF, u64key(height), &pending)
	if err != nil {
		return err
	}
	if !ok {
		pending.Height = height
		pending.TimestampMs = timestampMs
	}
	pending.Messages = append(pending.Messages, msgs...)
	b.put(dataCF, u64key(height), &pending)

	idx, err := b.t.getIDList(heightsCF, nil)
	if err != nil {
		return err
	}
	idx.insertSorted(height)
	b.put(heightsCF, nil, idx)
	return nil
}

// DeletePendingCheckpoint removes a consumed pending row, per spec.md
// §4.6 "delete consumed pending rows".
func (b *Batch) DeletePendingCheckpoint(s checkpoint.Stream, height uint64) error {
	dataCF, heightsCF := pendingCF(s)
	b.delete(dataCF, u64key(height))

	idx, err := b.t.getIDList(heightsCF, nil)
	if err != nil {
		return err
	}
	idx.remove(height)
	b.put(heightsCF, nil, idx)
	return nil
}

// PutSignature records one authority's signature over the checkpoint
// built at (stream, sequence), appending to the per-sequence index.
func (b *Batch) PutSignature(s checkpoint.Stream, msg SignatureMessage) error {
	dataCF, indexCF := sigCF(s)
	key := append(u64key(msg.Sequence), u64key(uint64(msg.Index))...)
	b.put(dataCF, key, &msg)

	idx, err := b.t.getIDList(indexCF, u64key(msg.Sequence))
	if err != nil {
		return err
	}
	idx.insertSorted(uint64(msg.Index))
	b.put(indexCF, u64key(msg.Sequence), idx)
	return nil
}

// PutBuiltCheckpoint persists a newly built checkpoint and advances the
// stream's last-built-sequence pointer.
func (b *Batch) PutBuiltCheckpoint(s checkpoint.Stream, built checkpoint.Built) {
	b.put(builtCF(s), u64key(built.Sequence), &built)
	b.put(cfLastBuiltSeq, []byte{byte(s)}, &idList{Values: []uint64{built.Sequence}})
}

// PutCertifiedCheckpoint persists a certified checkpoint, advances the
// stream's last-certified-sequence pointer, and updates the
// digest->sequence index, per spec.md §4.7 step 4.
func (b *Batch) PutCertifiedCheckpoint(s checkpoint.Stream, cert checkpoint.Certified) {
	b.put(certifiedCF(s), u64key(cert.Built.Sequence), &cert)
	b.put(cfLastCertifiedSeq, []byte{byte(s)}, &idList{Values: []uint64{cert.Built.Sequence}})

	c := cfDigestToSeqDWallet
	if s == checkpoint.StreamSystem {
		c = cfDigestToSeqSystem
	}
	b.put(c, cert.Digest[:], &idList{Values: []uint64{cert.Built.Sequence}})
}

// PutMaliciousReport appends a malicious report to the offline-tooling
// log (SPEC_FULL.md §9 supplemented feature).
func (b *Batch) PutMaliciousReport(r MaliciousReport) error {
	next, err := b.nextReportSeq("malicious")
	if err != nil {
		return err
	}
	b.put(cfMaliciousReports, u64key(next), &r)
	return nil
}

// PutThresholdReport is PutMaliciousReport's threshold-not-reached sibling.
func (b *Batch) PutThresholdReport(r ThresholdNotReachedReport) error {
	next, err := b.nextReportSeq("threshold")
	if err != nil {
		return err
	}
	b.put(cfThresholdReports, u64key(next), &r)
	return nil
}

func (b *Batch) nextReportSeq(kind string) (uint64, error) {
	idx, err := b.t.getIDList(cfReportSeq, []byte(kind))
	if err != nil {
		return 0, err
	}
	next := uint64(len(idx.Values))
	idx.Values = append(idx.Values, next)
	b.put(cfReportSeq, []byte(kind), idx)
	return next, nil
}

// Write commits every accumulated operation atomically. A failure here
// is the "StorageError during commit-write" escalation path of §7: the
// caller is expected to log at Crit and panic after flushing logs.
func (b *Batch) Write() error {
	if err := b.raw.Write(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageError, err)
	}
	return nil
}

// Size returns the number of pending operations in the batch.
func (b *Batch) Size() int {
	return b.raw.Size()
}
