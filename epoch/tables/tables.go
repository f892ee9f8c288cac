// Package tables implements the per-epoch persistent column families of
// SPEC_FULL.md §4.1, built on github.com/luxfi/database (the teacher's
// column-family KV dependency, grounded on the Database/Batch shape the
// teacher vendors locally in crypto/database and core/runtime). Column
// families are string/byte-prefixed key spaces over one
// database.Database handle opened per epoch directory.
package tables

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/luxfi/database"

	"github.com/luxfi/dwallet-consensus/checkpoint"
	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/epoch"
	"github.com/luxfi/dwallet-consensus/errs"
	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// KVStore is the narrow slice of database.Database this package
// actually drives. Declaring it locally (rather than taking
// database.Database directly) keeps Open usable with any store,
// including the in-memory fakes the package tests use, while a real
// database.Database value — which satisfies this structurally — is
// what production wiring passes in.
type KVStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewBatch() WriteBatch
	Close() error
}

// WriteBatch is the narrow slice of database.Batch this package drives.
type WriteBatch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Size() int
	Write() error
}

// cf is a column-family discriminant, prefixed onto every key so one
// database.Database handle can serve every table listed in spec.md §4.1.
type cf byte

const (
	cfPendingTx cf = iota
	cfProcessed
	cfStats
	cfMPCMessages
	cfMPCOutputs
	cfCapabilities
	cfConfigVersionSent
	cfPendingCheckpointDWallet
	cfPendingCheckpointSystem
	cfPendingCheckpointHeightsDWallet
	cfPendingCheckpointHeightsSystem
	cfPendingSigDWallet
	cfPendingSigSystem
	cfPendingSigIndexDWallet
	cfPendingSigIndexSystem
	cfBuiltDWallet
	cfBuiltSystem
	cfCertifiedDWallet
	cfCertifiedSystem
	cfLastBuiltSeq
	cfLastCertifiedSeq
	cfDigestToSeqDWallet
	cfDigestToSeqSystem
	cfMaliciousReports
	cfThresholdReports
	cfReportSeq
)

func u64key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func cfKey(c cf, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, byte(c))
	out = append(out, key...)
	return out
}

// idList is a persisted sorted index of heights or sequences, used in
// place of a prefix-iterator so every ordered scan the builder and
// aggregator need is backed only by Get/Put against a single known key,
// matching the Database/Batch surface the teacher's code actually
// exercises (no iterator use was found anywhere in the reference pack).
type idList struct {
	Values []uint64
}

var _ codec.Encoder = (*idList)(nil)
var _ codec.Decoder = (*idList)(nil)

func (l *idList) MarshalCanonical(p *wrappers.Packer) {
	p.PackInt(uint32(len(l.Values)))
	for _, v := range l.Values {
		p.PackLong(v)
	}
}

func (l *idList) UnmarshalCanonical(u *wrappers.Unpacker) error {
	n := u.UnpackInt()
	l.Values = make([]uint64, n)
	for i := range l.Values {
		l.Values[i] = u.UnpackLong()
	}
	return u.Errored()
}

func (l *idList) insertSorted(v uint64) {
	for i, existing := range l.Values {
		if existing == v {
			return
		}
		if existing > v {
			l.Values = append(l.Values, 0)
			copy(l.Values[i+1:], l.Values[i:])
			l.Values[i] = v
			return
		}
	}
	l.Values = append(l.Values, v)
}

func (l *idList) remove(v uint64) {
	for i, existing := range l.Values {
		if existing == v {
			l.Values = append(l.Values[:i], l.Values[i+1:]...)
			return
		}
	}
}

// Tables is the full set of per-epoch column families plus the
// epoch-lifetime cancellation latch every long-lived task selects on.
type Tables struct {
	epoch epoch.ID
	db    KVStore

	mu     sync.RWMutex
	alive  chan struct{}
	closed bool
}

// Open returns the tables for one epoch, backed by db (already scoped
// to this epoch's directory by the caller, matching the "epoch_<N>"
// per-epoch directory layout of spec.md §6).
func Open(epochID epoch.ID, db KVStore) *Tables {
	return &Tables{
		epoch: epochID,
		db:    db,
		alive: make(chan struct{}),
	}
}

// Close ends the epoch: the alive latch is closed so in-flight
// WithAlive callers observe EpochEnded, and the underlying database
// handle is released.
func (t *Tables) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.alive)
	t.mu.Unlock()
	return t.db.Close()
}

// WithAlive races f against the epoch-ended latch, implementing
// spec.md §4.1's "operations after the epoch has ended return
// EpochEnded" contract for any blocking call, per SPEC_FULL.md §5.
func (t *Tables) WithAlive(ctx context.Context, f func(context.Context) error) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errs.ErrEpochEnded
	}
	t.mu.RUnlock()

	done := make(chan error, 1)
	go func() { done <- f(ctx) }()

	select {
	case <-t.alive:
		return errs.ErrEpochEnded
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (t *Tables) get(c cf, key []byte, into codec.Decoder) (bool, error) {
	raw, err := t.db.Get(cfKey(c, key))
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.ErrStorageError
	}
	if err := codec.Unmarshal(raw, into); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tables) getIDList(c cf, key []byte) (*idList, error) {
	l := &idList{}
	_, err := t.get(c, key, l)
	return l, err
}

// --- direct (non-batched) reads ---

// IsProcessed reports whether key is already recorded in
// consensus_message_processed, the persistent half of the handler's
// dedup check (spec.md §4.5 step 3).
func (t *Tables) IsProcessed(key []byte) (bool, error) {
	has, err := t.db.Has(cfKey(cfProcessed, key))
	if err != nil {
		return false, errs.ErrStorageError
	}
	return has, nil
}

// Stats returns the persisted last_consensus_stats row.
func (t *Tables) Stats() (Stats, bool, error) {
	var s Stats
	ok, err := t.get(cfStats, nil, &s)
	return s, ok, err
}

// Capability returns the latest capability record advertised by an
// authority's party id, if any.
func (t *Tables) Capability(party uint16) (CapabilityRecord, bool, error) {
	var c CapabilityRecord
	ok, err := t.get(cfCapabilities, u64key(uint64(party)), &c)
	return c, ok, err
}

// ConfigVersionSent reports whether this node has already emitted a
// SetNextConfigVersion proposal for version v.
func (t *Tables) ConfigVersionSent(v uint32) (bool, error) {
	return t.db.Has(cfKey(cfConfigVersionSent, u64key(uint64(v))))
}

// MPCMessagesAt returns the messages observed in consensus round round,
// in observation order, from mpc_messages_by_round.
func (t *Tables) MPCMessagesAt(round uint64) ([]RawMessage, error) {
	var list RawMessageList
	_, err := t.get(cfMPCMessages, u64key(round), &list)
	return list.Items, err
}

// MPCOutputsAt is MPCMessagesAt's mpc_outputs_by_round sibling.
func (t *Tables) MPCOutputsAt(round uint64) ([]RawMessage, error) {
	var list RawMessageList
	_, err := t.get(cfMPCOutputs, u64key(round), &list)
	return list.Items, err
}

func pendingCF(s checkpoint.Stream) (data, heights cf) {
	if s == checkpoint.StreamSystem {
		return cfPendingCheckpointSystem, cfPendingCheckpointHeightsSystem
	}
	return cfPendingCheckpointDWallet, cfPendingCheckpointHeightsDWallet
}

// PendingCheckpoints returns every pending row of stream s in height
// order, the scan the builder performs each time it polls (spec.md
// §4.6 "Poll pending checkpoints in height order").
func (t *Tables) PendingCheckpoints(s checkpoint.Stream) ([]checkpoint.Pending, error) {
	dataCF, heightsCF := pendingCF(s)
	idx, err := t.getIDList(heightsCF, nil)
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint.Pending, 0, len(idx.Values))
	for _, h := range idx.Values {
		var p checkpoint.Pending
		ok, err := t.get(dataCF, u64key(h), &p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func sigCF(s checkpoint.Stream) (data, index cf) {
	if s == checkpoint.StreamSystem {
		return cfPendingSigSystem, cfPendingSigIndexSystem
	}
	return cfPendingSigDWallet, cfPendingSigIndexDWallet
}

// PendingSignatures returns the signatures collected for (stream,
// sequence) in index order, per spec.md §4.7 step 3.
func (t *Tables) PendingSignatures(s checkpoint.Stream, sequence uint64) ([]SignatureMessage, error) {
	dataCF, indexCF := sigCF(s)
	idx, err := t.getIDList(indexCF, u64key(sequence))
	if err != nil {
		return nil, err
	}
	out := make([]SignatureMessage, 0, len(idx.Values))
	for _, i := range idx.Values {
		var m SignatureMessage
		key := append(u64key(sequence), u64key(i)...)
		ok, err := t.get(dataCF, key, &m)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func builtCF(s checkpoint.Stream) cf {
	if s == checkpoint.StreamSystem {
		return cfBuiltSystem
	}
	return cfBuiltDWallet
}

func certifiedCF(s checkpoint.Stream) cf {
	if s == checkpoint.StreamSystem {
		return cfCertifiedSystem
	}
	return cfCertifiedDWallet
}

// BuiltCheckpoint returns the locally built checkpoint at (stream,
// sequence), the input the aggregator scans signatures against.
func (t *Tables) BuiltCheckpoint(s checkpoint.Stream, sequence uint64) (checkpoint.Built, bool, error) {
	var b checkpoint.Built
	ok, err := t.get(builtCF(s), u64key(sequence), &b)
	return b, ok, err
}

// CertifiedCheckpoint returns the certified checkpoint at (stream,
// sequence), if one has been persisted.
func (t *Tables) CertifiedCheckpoint(s checkpoint.Stream, sequence uint64) (*checkpoint.Certified, bool, error) {
	raw, err := t.db.Get(cfKey(certifiedCF(s), u64key(sequence)))
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.ErrStorageError
	}
	var c checkpoint.Certified
	if err := codec.Unmarshal(raw, &c); err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

// LastBuiltSequence returns the highest sequence built for stream s,
// and false if none has been built yet.
func (t *Tables) LastBuiltSequence(s checkpoint.Stream) (uint64, bool, error) {
	var l idList
	ok, err := t.get(cfLastBuiltSeq, []byte{byte(s)}, &l)
	if err != nil || !ok || len(l.Values) == 0 {
		return 0, false, err
	}
	return l.Values[0], true, nil
}

// LastCertifiedSequence returns the highest certified sequence for
// stream s, matching spec.md §4.7 step 1's "max(certified) + 1".
func (t *Tables) LastCertifiedSequence(s checkpoint.Stream) (uint64, bool, error) {
	var l idList
	ok, err := t.get(cfLastCertifiedSeq, []byte{byte(s)}, &l)
	if err != nil || !ok || len(l.Values) == 0 {
		return 0, false, err
	}
	return l.Values[0], true, nil
}

// SequenceForDigest resolves a certified checkpoint's digest back to
// its sequence number, the digest->sequence index spec.md §4.7 step 4
// requires aggregation to maintain.
func (t *Tables) SequenceForDigest(s checkpoint.Stream, digest [32]byte) (uint64, bool, error) {
	c := cfDigestToSeqDWallet
	if s == checkpoint.StreamSystem {
		c = cfDigestToSeqSystem
	}
	var l idList
	ok, err := t.get(c, digest[:], &l)
	if err != nil || !ok || len(l.Values) == 0 {
		return 0, false, err
	}
	return l.Values[0], true, nil
}

// MaliciousReports returns every persisted malicious report, exposed
// for offline tooling per SPEC_FULL.md §9 even though this module does
// not act on them.
func (t *Tables) MaliciousReports() ([]MaliciousReport, error) {
	idx, err := t.getIDList(cfReportSeq, []byte("malicious"))
	if err != nil {
		return nil, err
	}
	out := make([]MaliciousReport, 0, len(idx.Values))
	for _, i := range idx.Values {
		var r MaliciousReport
		ok, err := t.get(cfMaliciousReports, u64key(i), &r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ThresholdNotReachedReports mirrors MaliciousReports for the
// threshold-not-reached report kind.
func (t *Tables) ThresholdNotReachedReports() ([]ThresholdNotReachedReport, error) {
	idx, err := t.getIDList(cfReportSeq, []byte("threshold"))
	if err != nil {
		return nil, err
	}
	out := make([]ThresholdNotReachedReport, 0, len(idx.Values))
	for _, i := range idx.Values {
		var r ThresholdNotReachedReport
		ok, err := t.get(cfThresholdReports, u64key(i), &r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
